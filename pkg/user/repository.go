package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the identity store. Lookups by username are exact and case-sensitive;
// lookups by email ignore case.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)

	// UpdatePassword stores a new hash, stamps last_password_change and clears the failure counter.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// IncrementFailedAttempts atomically adds one failure and returns the new count.
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID) (int, error)
	// SetLockedUntil sets or clears (nil) account_locked_until without touching the counter.
	SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error
	// Unlock clears account_locked_until and resets the failure counter.
	Unlock(ctx context.Context, id uuid.UUID) error
	// RecordLogin resets the failure counter and stamps last_login.
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetActive flips is_active and sets account_locked_until in the same write.
	SetActive(ctx context.Context, id uuid.UUID, active bool, lockedUntil *time.Time) error
	SetMuted(ctx context.Context, id uuid.UUID, muted bool, until *time.Time) error
	SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret string) error

	// ListRestricted returns accounts that are disabled or carry a lock timestamp.
	ListRestricted(ctx context.Context) ([]User, error)
}
