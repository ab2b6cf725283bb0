package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is one bearer token bound to a user.
// Sessions are deactivated, never deleted; expiry is checked when the token is used.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Token        string    `json:"token"`
	UserID       uuid.UUID `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"-"`
}

// ExpiredAt reports whether the session is past its expiry at now
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Lifetime is the ttl the session was issued with
func (s Session) Lifetime() time.Duration {
	return s.ExpiresAt.Sub(s.CreatedAt)
}

// SessionSummary is the self-service listing view
type SessionSummary struct {
	Token        string    `json:"token"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	Current      bool      `json:"current"`
}

// SessionListResponse is the body of the session listing
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// RevokeSessionRequest names the token to end
type RevokeSessionRequest struct {
	Token string `json:"token"`
}
