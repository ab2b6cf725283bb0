package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/user"
)

// Defaults applied when a Policy field is zero
const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// Policy sets when repeated failures lock an account
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Store is the slice of the user store the guard mutates
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID) (int, error)
	SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error
	Unlock(ctx context.Context, id uuid.UUID) error
}

// Guard is the per-account failed-attempt counter and timed lock.
// The counter lives on the user row and is incremented atomically by the store.
type Guard struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewGuard creates a guard
func NewGuard(store Store, policy Policy) *Guard {
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultThreshold
	}
	if policy.Duration <= 0 {
		policy.Duration = DefaultDuration
	}
	return &Guard{store: store, policy: policy, now: time.Now}
}

// WithClock replaces time.Now, for tests
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Policy returns the effective policy
func (g *Guard) Policy() Policy {
	return g.policy
}

// IsLocked reports whether u has a running lock
func (g *Guard) IsLocked(u user.User) bool {
	return u.IsLocked(g.now())
}

// IsLockedByID loads the user and reports IsLocked
func (g *Guard) IsLockedByID(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := g.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return g.IsLocked(u), nil
}

// RecordFailure counts one failed password and locks the account once the threshold is reached.
// It returns the new count and the lock expiry when this failure triggered the lock.
func (g *Guard) RecordFailure(ctx context.Context, id uuid.UUID) (int, *time.Time, error) {
	count, err := g.store.IncrementFailedAttempts(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record failure: %w", err)
	}
	if count < g.policy.Threshold {
		return count, nil, nil
	}

	until, err := g.Lock(ctx, id, g.policy.Duration)
	if err != nil {
		return count, nil, err
	}
	slog.Warn("Account locked after failed attempts", "user_id", id, "attempts", count, "until", until)
	return count, &until, nil
}

// Lock sets account_locked_until to now+d and returns it
func (g *Guard) Lock(ctx context.Context, id uuid.UUID, d time.Duration) (time.Time, error) {
	until := g.now().Add(d).UTC()
	if err := g.store.SetLockedUntil(ctx, id, &until); err != nil {
		return time.Time{}, fmt.Errorf("failed to lock account: %w", err)
	}
	return until, nil
}

// Unlock clears the lock and resets the failure counter
func (g *Guard) Unlock(ctx context.Context, id uuid.UUID) error {
	if err := g.store.Unlock(ctx, id); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	return nil
}
