package sla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "compliance/pkg/domain"
)

// Tracker remembers the last classification observed per grievance so a
// breach is escalated once, not on every sweep.
type Tracker interface {
	// Swap stores kind and returns the previously stored kind ("" if none).
	Swap(ctx context.Context, grievanceID id.GrievanceID, kind Kind) (Kind, error)
	Forget(ctx context.Context, grievanceID id.GrievanceID) error
}

// MemoryTracker is a process-local Tracker.
type MemoryTracker struct {
	mu   sync.Mutex
	last map[id.GrievanceID]Kind
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[id.GrievanceID]Kind)}
}

func (t *MemoryTracker) Swap(_ context.Context, grievanceID id.GrievanceID, kind Kind) (Kind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.last[grievanceID]
	t.last[grievanceID] = kind
	return prev, nil
}

func (t *MemoryTracker) Forget(_ context.Context, grievanceID id.GrievanceID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, grievanceID)
	return nil
}

// RedisTracker shares observations across replicas. SET ... GET makes the
// swap atomic, so concurrent sweepers escalate a transition exactly once.
type RedisTracker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

const (
	defaultTrackerPrefix = "sla:last:"
	defaultTrackerTTL    = 30 * 24 * time.Hour
)

// NewRedisTracker expires entries after ttl so resolved grievances age out.
func NewRedisTracker(client redis.Cmdable, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = defaultTrackerTTL
	}
	return &RedisTracker{client: client, prefix: defaultTrackerPrefix, ttl: ttl}
}

func (t *RedisTracker) key(grievanceID id.GrievanceID) string {
	return t.prefix + grievanceID.String()
}

func (t *RedisTracker) Swap(ctx context.Context, grievanceID id.GrievanceID, kind Kind) (Kind, error) {
	prev, err := t.client.SetArgs(ctx, t.key(grievanceID), string(kind), redis.SetArgs{
		Get: true,
		TTL: t.ttl,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("swap sla state: %w", err)
	}
	return Kind(prev), nil
}

func (t *RedisTracker) Forget(ctx context.Context, grievanceID id.GrievanceID) error {
	if err := t.client.Del(ctx, t.key(grievanceID)).Err(); err != nil {
		return fmt.Errorf("forget sla state: %w", err)
	}
	return nil
}
