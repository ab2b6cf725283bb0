package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryAttemptRepository implements AttemptRepository using in-memory storage
type InMemoryAttemptRepository struct {
	mu       sync.RWMutex
	attempts []Attempt
}

// NewInMemoryAttemptRepository creates a new in-memory attempt log
func NewInMemoryAttemptRepository() *InMemoryAttemptRepository {
	return &InMemoryAttemptRepository{}
}

func (r *InMemoryAttemptRepository) Record(ctx context.Context, attempt Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *InMemoryAttemptRepository) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, a := range r.attempts {
		if a.IPAddress == ip && !a.Success && a.AttemptedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// All returns a copy of every recorded attempt
func (r *InMemoryAttemptRepository) All() []Attempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}
