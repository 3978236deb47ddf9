// Package store persists verification challenges.
package store

import (
	"context"
	"sync"

	"compliance/internal/verification/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
	platformsync "compliance/pkg/platform/sync"
)

// InMemoryStore keeps challenges in memory. Mutations for one consent record
// are serialized by a keyed mutex so Issue and Execute never interleave.
type InMemoryStore struct {
	mu         sync.RWMutex
	challenges map[id.ChallengeID]*models.Challenge
	locks      *platformsync.KeyedMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		challenges: make(map[id.ChallengeID]*models.Challenge),
		locks:      platformsync.NewKeyedMutex(),
	}
}

func (s *InMemoryStore) Issue(_ context.Context, challenge *models.Challenge) error {
	return s.locks.WithLock(challenge.ConsentRecordID.String(), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.challenges[challenge.ID]; exists {
			return sentinel.ErrConflict
		}
		for _, c := range s.challenges {
			if c.ConsentRecordID == challenge.ConsentRecordID && !c.Consumed {
				c.Consumed = true
			}
		}
		s.challenges[challenge.ID] = clone(challenge)
		return nil
	})
}

func (s *InMemoryStore) FindByID(_ context.Context, challengeID id.ChallengeID) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) Execute(_ context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) (bool, error)) (*models.Challenge, error) {
	s.mu.RLock()
	existing, ok := s.challenges[challengeID]
	var key string
	if ok {
		key = existing.ConsentRecordID.String()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	var out *models.Challenge
	err := s.locks.WithLock(key, func() error {
		s.mu.RLock()
		working := clone(s.challenges[challengeID])
		s.mu.RUnlock()

		changed, err := fn(working)
		if err != nil {
			return err
		}
		if changed {
			s.mu.Lock()
			s.challenges[challengeID] = clone(working)
			s.mu.Unlock()
		}
		out = working
		return nil
	})
	return out, err
}

func clone(c *models.Challenge) *models.Challenge {
	cp := *c
	cp.CodeHash = append([]byte(nil), c.CodeHash...)
	return &cp
}
