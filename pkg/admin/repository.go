package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyAdmin   = errors.New("user is already an admin")
	ErrNotAdmin       = errors.New("user is not an admin")
	ErrProtectedAdmin = errors.New("protected admin cannot be revoked")
	ErrOwnerMismatch  = errors.New("a different account is already the protected owner")
)

// Admin is one row of the admin role table
type Admin struct {
	UserID      uuid.UUID  `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	GrantedBy   *uuid.UUID `json:"granted_by,omitempty"`
	GrantedAt   time.Time  `json:"granted_at"`
	IsProtected bool       `json:"is_protected"`
}

// Repository stores admin membership
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (Admin, error)
	List(ctx context.Context) ([]Admin, error)
	Grant(ctx context.Context, admin Admin) error
	// Revoke removes a non-protected admin.
	Revoke(ctx context.Context, userID uuid.UUID) error
	// EnsureProtected inserts userID as a protected admin or marks the existing row protected.
	// It returns ErrOwnerMismatch when another account already holds the protected row.
	EnsureProtected(ctx context.Context, userID uuid.UUID, at time.Time) error
}
