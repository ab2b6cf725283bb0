package passwordreset

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTokenNotFound = errors.New("password reset token not found")

// Token is one emailed reset link
type Token struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Repository stores reset tokens
type Repository interface {
	Create(ctx context.Context, token Token) error
	GetByToken(ctx context.Context, token string) (Token, error)
	// MarkUsed sets used_at when it is still unset and reports whether it did.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// DeleteUnused removes the user's tokens that were never used.
	DeleteUnused(ctx context.Context, userID uuid.UUID) error
}
