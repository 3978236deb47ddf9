// Package store persists grievances and their comment threads.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"compliance/internal/grievance/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
	platformsync "compliance/pkg/platform/sync"
)

// InMemoryStore keeps grievances in memory; Execute serializes per grievance.
type InMemoryStore struct {
	mu         sync.RWMutex
	grievances map[id.GrievanceID]*models.Grievance
	byPublicID map[string]id.GrievanceID
	locks      *platformsync.KeyedMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		grievances: make(map[id.GrievanceID]*models.Grievance),
		byPublicID: make(map[string]id.GrievanceID),
		locks:      platformsync.NewKeyedMutex(),
	}
}

func (s *InMemoryStore) Create(_ context.Context, g *models.Grievance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.grievances[g.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byPublicID[g.PublicID]; exists {
		return sentinel.ErrConflict
	}
	s.grievances[g.ID] = g.Clone()
	s.byPublicID[g.PublicID] = g.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grievances[grievanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *InMemoryStore) FindByPublicID(ctx context.Context, publicID string) (*models.Grievance, error) {
	s.mu.RLock()
	gid, ok := s.byPublicID[publicID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, gid)
}

// List returns matches oldest first, without comments.
func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Grievance
	for _, g := range s.grievances {
		if !filter.Matches(g) {
			continue
		}
		c := g.Clone()
		c.Comments = nil
		out = append(out, c)
	}
	slices.SortFunc(out, byFiling)
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListOpen returns every open grievance, unpaged, oldest first.
func (s *InMemoryStore) ListOpen(_ context.Context) ([]*models.Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Grievance
	for _, g := range s.grievances {
		if g.Status.IsOpen() {
			c := g.Clone()
			c.Comments = nil
			out = append(out, c)
		}
	}
	slices.SortFunc(out, byFiling)
	return out, nil
}

func byFiling(a, b *models.Grievance) int {
	return cmp.Or(a.FiledAt.Compare(b.FiledAt), cmp.Compare(a.PublicID, b.PublicID))
}

func (s *InMemoryStore) Execute(_ context.Context, grievanceID id.GrievanceID, fn func(*models.Grievance) (bool, error)) (*models.Grievance, error) {
	var out *models.Grievance
	err := s.locks.WithLock(grievanceID.String(), func() error {
		s.mu.RLock()
		current, ok := s.grievances[grievanceID]
		var working *models.Grievance
		if ok {
			working = current.Clone()
		}
		s.mu.RUnlock()
		if !ok {
			return sentinel.ErrNotFound
		}

		changed, err := fn(working)
		if err != nil {
			return err
		}
		if changed {
			s.mu.Lock()
			s.grievances[grievanceID] = working.Clone()
			s.mu.Unlock()
		}
		out = working
		return nil
	})
	return out, err
}
