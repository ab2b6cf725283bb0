package passwordreset

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/ratelimit"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
)

const (
	DefaultTokenTTL    = time.Hour
	DefaultMaxRequests = 3
	DefaultWindow      = time.Hour

	// GenericMessage is the answer to every well-formed reset request
	GenericMessage = "If an account exists with this email, you will receive a password reset link."
)

// Mailer sends the reset emails
type Mailer interface {
	SendPasswordReset(to, username, token string, expiresAt time.Time) error
	SendPasswordResetConfirmation(to, username string) error
}

// Options tune the reset flow; zero values take the defaults
type Options struct {
	TokenTTL    time.Duration
	MaxRequests int
	Window      time.Duration
}

// Service issues and redeems emailed password reset tokens
type Service struct {
	repo     Repository
	users    user.Repository
	hasher   credential.PasswordHasher
	policy   credential.PasswordPolicy
	sessions *sessions.Manager
	mailer   Mailer
	requests ratelimit.AttemptRepository
	audit    *audit.Logger
	opts     Options
	now      func() time.Time
}

// NewService creates the reset service. requests keeps the per-IP request window.
func NewService(repo Repository, users user.Repository, hasher credential.PasswordHasher, sessionManager *sessions.Manager,
	mailer Mailer, requests ratelimit.AttemptRepository, auditLogger *audit.Logger, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = DefaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Service{
		repo:     repo,
		users:    users,
		hasher:   hasher,
		policy:   credential.DefaultPasswordPolicy(),
		sessions: sessionManager,
		mailer:   mailer,
		requests: requests,
		audit:    auditLogger,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces time.Now, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Request mails a reset link when email belongs to an account. The result does not
// reveal whether it does; only malformed input and throttling are reported.
func (s *Service) Request(ctx context.Context, email, ip string) error {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperrors.InvalidInput("email", "invalid email address")
	}

	now := s.now().UTC()
	count, err := s.requests.CountFailuresSince(ctx, ip, now.Add(-s.opts.Window))
	if err != nil {
		slog.Error("Failed to count password reset requests", "ip", ip, "err", err)
	} else if count >= s.opts.MaxRequests {
		slog.Warn("Password reset requests throttled", "ip", ip, "count", count)
		return apperrors.RateLimitExceeded("Too many password reset requests. Please try again later.")
	}
	if err := s.requests.Record(ctx, ratelimit.Attempt{IPAddress: ip, AttemptedAt: now, Reason: "password reset"}); err != nil {
		slog.Error("Failed to record password reset request", "ip", ip, "err", err)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrUserNotFound) {
		slog.Info("Password reset requested for unknown email", "ip", ip)
		return nil
	}
	if err != nil {
		return apperrors.InternalWrap(err, "failed to look up user")
	}

	if err := s.repo.DeleteUnused(ctx, u.ID); err != nil {
		return apperrors.InternalWrap(err, "failed to clear earlier reset tokens")
	}
	raw, err := credential.GenerateToken(credential.TokenBytes)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to generate reset token")
	}
	token := Token{
		UserID:    u.ID,
		Token:     raw,
		IPAddress: ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.TokenTTL),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return apperrors.InternalWrap(err, "failed to store reset token")
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(u.Email, u.Username, raw, token.ExpiresAt); err != nil {
			slog.Error("Failed to send password reset email", "user_id", u.ID, "err", err)
		}
	}
	s.audit.LogUser(ctx, u.ID, audit.ActionPasswordResetRequested, "Password reset requested")
	return nil
}

// Confirm sets a new password from a reset token, then signs the account out everywhere.
func (s *Service) Confirm(ctx context.Context, rawToken, password string) error {
	if rawToken == "" || password == "" {
		return apperrors.InvalidInput("token", "missing token or password")
	}
	if problems := s.policy.Check(password); len(problems) > 0 {
		return apperrors.New(apperrors.ErrCodePasswordComplexity, "Password is not strong enough").
			WithDetail("problems", problems)
	}

	token, err := s.repo.GetByToken(ctx, rawToken)
	if errors.Is(err, ErrTokenNotFound) {
		return apperrors.ValidationFailed("Invalid or expired reset token", nil)
	}
	if err != nil {
		return apperrors.InternalWrap(err, "failed to load reset token")
	}
	now := s.now().UTC()
	if token.UsedAt != nil {
		return apperrors.ValidationFailed("Invalid or expired reset token", nil)
	}
	if !now.Before(token.ExpiresAt) {
		return apperrors.ValidationFailed("Reset token has expired. Please request a new one.", nil)
	}

	u, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to load user")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to hash password")
	}

	claimed, err := s.repo.MarkUsed(ctx, token.ID, now)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to mark reset token used")
	}
	if !claimed {
		return apperrors.ValidationFailed("Invalid or expired reset token", nil)
	}

	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return apperrors.InternalWrap(err, "failed to update password")
	}
	if s.sessions != nil {
		if _, err := s.sessions.RevokeAll(ctx, u.ID); err != nil {
			slog.Error("Failed to revoke sessions after password reset", "user_id", u.ID, "err", err)
			return apperrors.InternalWrap(err, "failed to end sessions")
		}
	}

	slog.Info("Password reset completed", "user_id", u.ID)
	s.audit.LogUser(ctx, u.ID, audit.ActionPasswordReset, "Password reset completed")
	if s.mailer != nil {
		if err := s.mailer.SendPasswordResetConfirmation(u.Email, u.Username); err != nil {
			slog.Error("Failed to send password reset confirmation", "user_id", u.ID, "err", err)
		}
	}
	return nil
}
