// Package store persists consent records.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"compliance/internal/consent/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
	platformsync "compliance/pkg/platform/sync"
)

// Error Contract:
//   - ErrNotFound when the record does not exist
//   - ErrConflict when Create would add a second live record for a
//     (student, purpose) pair
//   - errors returned by an Execute callback pass through unchanged

type studentPurpose struct {
	student id.StudentID
	purpose string
}

// InMemoryStore keeps records in memory, with history per (student, purpose)
// in creation order.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.ConsentID]*models.Record
	history map[studentPurpose][]id.ConsentID
	locks   *platformsync.KeyedMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.ConsentID]*models.Record),
		history: make(map[studentPurpose][]id.ConsentID),
		locks:   platformsync.NewKeyedMutex(),
	}
}

func keyOf(r *models.Record) studentPurpose {
	return studentPurpose{student: r.StudentID, purpose: r.PurposeCode}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	key := keyOf(record)
	for _, prior := range s.history[key] {
		if s.records[prior].Status != models.StatusWithdrawn {
			return sentinel.ErrConflict
		}
	}
	s.records[record.ID] = record.Clone()
	s.history[key] = append(s.history[key], record.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, studentID id.StudentID, purposeCode string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[studentPurpose{student: studentID, purpose: purposeCode}]
	if len(ids) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return s.records[ids[len(ids)-1]].Clone(), nil
}

func (s *InMemoryStore) ListByStudent(_ context.Context, studentID id.StudentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if r.StudentID == studentID {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Record) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.PurposeCode, b.PurposeCode))
	})
	return out, nil
}

// Execute runs fn on a copy of the record under a per-record lock and stores
// the copy when fn reports a change.
func (s *InMemoryStore) Execute(_ context.Context, consentID id.ConsentID, fn func(*models.Record) (bool, error)) (*models.Record, error) {
	var out *models.Record
	err := s.locks.WithLock(consentID.String(), func() error {
		s.mu.RLock()
		current, ok := s.records[consentID]
		var working *models.Record
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
			s.records[consentID] = working.Clone()
			s.mu.Unlock()
		}
		out = working
		return nil
	})
	return out, err
}
