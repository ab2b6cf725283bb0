package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Attempt is one immutable login attempt row
type Attempt struct {
	IPAddress   string
	Username    string
	AttemptedAt time.Time
	Success     bool
	Reason      string
}

// AttemptRepository stores attempts and counts failures over a trailing window
type AttemptRepository interface {
	Record(ctx context.Context, attempt Attempt) error
	CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error)
}

// AttemptLimiter blocks an IP after too many failed logins in a sliding window.
// Every attempt is written to the log store; when a window store is set, counting
// uses it instead of the log.
type AttemptLimiter struct {
	log    AttemptRepository
	window AttemptRepository
	now    func() time.Time
}

// Option configures an AttemptLimiter
type Option func(*AttemptLimiter)

// WithWindowStore counts failures from store (e.g. Redis) instead of the log store
func WithWindowStore(store AttemptRepository) Option {
	return func(l *AttemptLimiter) {
		l.window = store
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(l *AttemptLimiter) {
		l.now = now
	}
}

// NewAttemptLimiter creates a limiter over the attempt log
func NewAttemptLimiter(log AttemptRepository, opts ...Option) *AttemptLimiter {
	l := &AttemptLimiter{log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TooManyFailures reports whether ip has at least maxAttempts failures within window.
// A counting error fails open and is logged.
func (l *AttemptLimiter) TooManyFailures(ctx context.Context, ip string, maxAttempts int, window time.Duration) bool {
	store := l.log
	if l.window != nil {
		store = l.window
	}
	count, err := store.CountFailuresSince(ctx, ip, l.now().Add(-window))
	if err != nil {
		slog.Error("Failed to count login failures", "ip", ip, "err", err)
		return false
	}
	return count >= maxAttempts
}

// Record appends one attempt. Write errors are logged, never returned.
func (l *AttemptLimiter) Record(ctx context.Context, ip, username string, success bool, reason string) {
	attempt := Attempt{
		IPAddress:   ip,
		Username:    username,
		AttemptedAt: l.now().UTC(),
		Success:     success,
		Reason:      reason,
	}
	if err := l.log.Record(ctx, attempt); err != nil {
		slog.Error("Failed to record login attempt", "ip", ip, "username", username, "err", err)
	}
	if l.window != nil {
		if err := l.window.Record(ctx, attempt); err != nil {
			slog.Error("Failed to record login attempt in window store", "ip", ip, "err", err)
		}
	}
}
