package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/lockout"
	"github.com/mytad/game-auth/pkg/ratelimit"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/twofa"
	"github.com/mytad/game-auth/pkg/user"
)

// Defaults applied when a Policy field is zero
const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberTTL   = 30 * 24 * time.Hour
)

// UserStore is the part of the identity store the login flow reads and stamps
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ChallengeService holds pending second factors between the two login requests
type ChallengeService interface {
	BeginChallenge(ctx context.Context, userID uuid.UUID, ip, userAgent string, rememberMe bool) (string, twofa.Challenge, error)
	CompleteChallenge(ctx context.Context, token, code, backupCode string) (twofa.Challenge, user.User, error)
}

// LoginAlerter mails the account owner about a login from an unseen IP
type LoginAlerter interface {
	SendLoginAlert(to, username, ip, userAgent string, at time.Time) error
}

// Policy holds the limits and lifetimes the flow applies
type Policy struct {
	MaxAttempts   int
	AttemptWindow time.Duration
	SessionTTL    time.Duration
	RememberTTL   time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.AttemptWindow <= 0 {
		p.AttemptWindow = DefaultAttemptWindow
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = DefaultSessionTTL
	}
	if p.RememberTTL <= 0 {
		p.RememberTTL = DefaultRememberTTL
	}
	return p
}

// ServiceDependencies contains all the services needed by login flow steps.
// Alerts and TwoFactor may be nil.
type ServiceDependencies struct {
	Users     UserStore
	Devices   *device.Guard
	Attempts  *ratelimit.AttemptLimiter
	Lockout   *lockout.Guard
	Hasher    credential.PasswordHasher
	TwoFactor ChallengeService
	Sessions  *sessions.Manager
	Audit     *audit.Logger
	Alerts    LoginAlerter
	Policy    Policy
	Now       func() time.Time

	// dummyHash is verified against when the username is unknown so both paths cost one hash
	dummyHash string
}

func (d *ServiceDependencies) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// Request contains all the data needed for a login flow
type Request struct {
	Username   string
	Password   string
	RememberMe bool

	IPAddress   string
	UserAgent   string
	Fingerprint string

	// Resumption fields
	ChallengeToken string
	TwoFACode      string
	BackupCode     string
}

// Result contains the result of a login flow operation
type Result struct {
	RequiresTwoFA      bool
	ChallengeToken     string
	ChallengeExpiresAt time.Time

	User            user.User
	Session         *sessions.Session
	RememberSession *sessions.Session

	// NewIP is set when the session was issued to an address the account had not used before
	NewIP bool
}

// Service orchestrates the login state machine and the session endpoints around it
type Service struct {
	services      *ServiceDependencies
	passwordFlow  *FlowExecutor
	twoFactorFlow *FlowExecutor
}

// NewService wires the login flows over deps
func NewService(deps ServiceDependencies) *Service {
	deps.Policy = deps.Policy.withDefaults()
	if deps.Hasher != nil {
		if h, err := deps.Hasher.Hash("not-a-real-password"); err == nil {
			deps.dummyHash = h
		} else {
			slog.Warn("Failed to prepare dummy hash", "err", err)
		}
	}
	services := &deps
	builders := NewLoginFlowBuilders(services)
	return &Service{
		services:      services,
		passwordFlow:  builders.BuildPasswordLoginFlow(),
		twoFactorFlow: builders.BuildTwoFactorFlow(),
	}
}

// Policy returns the effective policy
func (s *Service) Policy() Policy {
	return s.services.Policy
}

// Login runs the password step. The result either carries a session or, for
// accounts with 2FA, a challenge token for Verify2FA.
func (s *Service) Login(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		s.services.Attempts.Record(ctx, req.IPAddress, req.Username, false, "Missing credentials")
		return Result{}, apperrors.InvalidInput("credentials", "username and password are required")
	}
	return s.passwordFlow.Execute(ctx, req)
}

// Verify2FA completes a pending login with a TOTP or backup code
func (s *Service) Verify2FA(ctx context.Context, req Request) (Result, error) {
	if s.services.TwoFactor == nil {
		return Result{}, apperrors.New(apperrors.ErrCode2FAInvalid, "Invalid verification code")
	}
	if req.ChallengeToken == "" || (req.TwoFACode == "" && req.BackupCode == "") {
		return Result{}, apperrors.InvalidInput("code", "challenge token and a code or backup code are required")
	}
	return s.twoFactorFlow.Execute(ctx, req)
}

// Logout ends the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string, userID *uuid.UUID) error {
	if err := s.services.Sessions.Revoke(ctx, token); err != nil {
		return apperrors.InternalWrap(err, "failed to end session")
	}
	if userID != nil {
		s.services.Audit.Log(ctx, userID, audit.ActionLogout, "User logged out")
	}
	return nil
}

// Refresh replaces token with a new one of the same lifetime
func (s *Service) Refresh(ctx context.Context, token, ip, userAgent string) (sessions.Session, error) {
	session, err := s.services.Sessions.Refresh(ctx, token, ip, userAgent)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalidSession) {
			return sessions.Session{}, apperrors.InvalidToken()
		}
		return sessions.Session{}, apperrors.InternalWrap(err, "failed to refresh session")
	}
	s.services.Audit.LogUser(ctx, session.UserID, audit.ActionSessionRefresh, "Session refreshed")
	return session, nil
}

// CurrentSession validates token and loads its account
func (s *Service) CurrentSession(ctx context.Context, token string) (sessions.Session, user.User, error) {
	session, err := s.services.Sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalidSession) {
			return sessions.Session{}, user.User{}, apperrors.InvalidToken()
		}
		return sessions.Session{}, user.User{}, apperrors.InternalWrap(err, "failed to validate session")
	}
	u, err := s.services.Users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return sessions.Session{}, user.User{}, apperrors.InvalidToken()
		}
		return sessions.Session{}, user.User{}, apperrors.InternalWrap(err, "failed to load user")
	}
	return session, u, nil
}

func invalidCredentials() *apperrors.Error {
	return apperrors.New(apperrors.ErrCodeInvalidCredentials, "Invalid username or password")
}
