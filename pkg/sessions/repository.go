package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when no active row matches the token
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for session data access
type Repository interface {
	Create(ctx context.Context, session Session) (Session, error)

	// GetActiveByToken returns the active row for token, expired or not.
	GetActiveByToken(ctx context.Context, token string) (Session, error)

	// Deactivate ends the session and reports whether this call changed it.
	Deactivate(ctx context.Context, token string) (bool, error)

	// DeactivateAllForUser ends every active session of userID and returns how many ended.
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int, error)

	TouchActivity(ctx context.Context, token string, at time.Time) error

	// ListActiveByUser returns active, unexpired sessions newest first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error)

	// HasSessionFromIP reports whether userID ever had a session from ip.
	HasSessionFromIP(ctx context.Context, userID uuid.UUID, ip string) (bool, error)
}
