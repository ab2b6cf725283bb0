package sessions

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/credential"
)

// ErrInvalidSession is the single signal for unknown, expired, revoked and malformed tokens
var ErrInvalidSession = errors.New("invalid session")

// Manager issues, validates, refreshes and revokes session tokens.
// A token moves Issued -> Active -> Expired or Revoked and never comes back.
type Manager struct {
	repo Repository
	now  func() time.Time
}

// NewManager creates a new session manager
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

// WithClock replaces time.Now, for tests
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue creates a session for userID that expires after ttl
func (m *Manager) Issue(ctx context.Context, userID uuid.UUID, ip, userAgent string, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		return Session{}, fmt.Errorf("session ttl must be positive, got %v", ttl)
	}
	token, err := credential.GenerateToken(credential.TokenBytes)
	if err != nil {
		return Session{}, err
	}

	now := m.now().UTC()
	session, err := m.repo.Create(ctx, Session{
		ID:           uuid.New(),
		Token:        token,
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
		IsActive:     true,
	})
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("Session issued", "user_id", userID, "expires_at", session.ExpiresAt)
	return session, nil
}

// Validate returns the live session for token. An expired row is deactivated on the way out.
func (m *Manager) Validate(ctx context.Context, token string) (Session, error) {
	if !wellFormed(token) {
		return Session{}, ErrInvalidSession
	}

	session, err := m.repo.GetActiveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, ErrInvalidSession
		}
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	now := m.now().UTC()
	if session.ExpiredAt(now) {
		if _, err := m.repo.Deactivate(ctx, token); err != nil {
			slog.Warn("Failed to deactivate expired session", "session_id", session.ID, "err", err)
		}
		return Session{}, ErrInvalidSession
	}

	if err := m.repo.TouchActivity(ctx, token, now); err != nil {
		slog.Warn("Failed to update session activity", "session_id", session.ID, "err", err)
	} else {
		session.LastActivity = now
	}
	return session, nil
}

// Refresh swaps token for a new one with a fresh expiry of the same length.
// The old token is deactivated before the new one is issued, so two concurrent
// refreshes of one token cannot both succeed.
func (m *Manager) Refresh(ctx context.Context, token, ip, userAgent string) (Session, error) {
	old, err := m.Validate(ctx, token)
	if err != nil {
		return Session{}, err
	}

	changed, err := m.repo.Deactivate(ctx, token)
	if err != nil {
		return Session{}, fmt.Errorf("failed to deactivate session: %w", err)
	}
	if !changed {
		return Session{}, ErrInvalidSession
	}

	if ip == "" {
		ip = old.IPAddress
	}
	if userAgent == "" {
		userAgent = old.UserAgent
	}
	return m.Issue(ctx, old.UserID, ip, userAgent, old.Lifetime())
}

// Revoke ends one session. Revoking an unknown or ended token is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if !wellFormed(token) {
		return nil
	}
	if _, err := m.repo.Deactivate(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll ends every session of userID
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := m.repo.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	slog.Info("Revoked all sessions", "user_id", userID, "count", n)
	return n, nil
}

// ListActive returns the live sessions of userID
func (m *Manager) ListActive(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	return m.repo.ListActiveByUser(ctx, userID, m.now().UTC())
}

// ListSummaries returns the listing view, marking currentToken
func (m *Manager) ListSummaries(ctx context.Context, userID uuid.UUID, currentToken string) (SessionListResponse, error) {
	list, err := m.ListActive(ctx, userID)
	if err != nil {
		return SessionListResponse{}, err
	}
	summaries := make([]SessionSummary, len(list))
	for i, s := range list {
		summaries[i] = SessionSummary{
			Token:        s.Token,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			ExpiresAt:    s.ExpiresAt,
			LastActivity: s.LastActivity,
			Current:      s.Token == currentToken,
		}
	}
	return SessionListResponse{Sessions: summaries, Total: len(summaries)}, nil
}

// RevokeOwned ends target only if it belongs to userID
func (m *Manager) RevokeOwned(ctx context.Context, userID uuid.UUID, target string) error {
	if !wellFormed(target) {
		return ErrSessionNotFound
	}
	session, err := m.repo.GetActiveByToken(ctx, target)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrNotOwner
	}
	return m.Revoke(ctx, target)
}

// ErrNotOwner is returned when revoking another user's session
var ErrNotOwner = errors.New("session belongs to another user")

// SeenIP reports whether userID has had a session from ip before
func (m *Manager) SeenIP(ctx context.Context, userID uuid.UUID, ip string) (bool, error) {
	return m.repo.HasSessionFromIP(ctx, userID, ip)
}

func wellFormed(token string) bool {
	if len(token) != credential.TokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
