package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Logger writes audit rows as a side effect of security decisions.
// Write failures are logged and swallowed so they never change the outcome of the caller.
type Logger struct {
	repo Repository
	now  func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(repo Repository) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// WithClock replaces the clock, for tests
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Log records action for userID (nil when no identity is resolved) using the request metadata in ctx.
// A nil Logger discards the entry.
func (l *Logger) Log(ctx context.Context, userID *uuid.UUID, action, description string) {
	if l == nil {
		return
	}
	meta := MetaFromContext(ctx)
	entry := Entry{
		ID:          uuid.New(),
		UserID:      userID,
		Action:      action,
		Description: description,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		slog.Error("Failed to write audit entry", "action", action, "err", err)
	}
}

// LogUser is Log for a resolved identity
func (l *Logger) LogUser(ctx context.Context, userID uuid.UUID, action, description string) {
	l.Log(ctx, &userID, action, description)
}

// Query returns the admin report for filter
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return l.repo.Query(ctx, filter.Normalize())
}
