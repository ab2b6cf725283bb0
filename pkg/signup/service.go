package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	DefaultSessionTTL = 24 * time.Hour
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SignupService handles user registration business logic
type SignupService struct {
	users               user.Repository
	hasher              credential.PasswordHasher
	policy              credential.PasswordPolicy
	devices             *device.Guard
	sessions            *sessions.Manager
	audit               *audit.Logger
	sessionTTL          time.Duration
	registrationEnabled bool
	reserved            []string
}

// SignupServiceOption is a functional option for configuring SignupService
type SignupServiceOption func(*SignupService)

// NewSignupService creates a new SignupService with the given options
func NewSignupService(users user.Repository, opts ...SignupServiceOption) *SignupService {
	s := &SignupService{
		users:               users,
		hasher:              credential.NewBcryptHasher(credential.DefaultCost),
		policy:              credential.DefaultPasswordPolicy(),
		sessionTTL:          DefaultSessionTTL,
		registrationEnabled: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func WithPasswordHasher(h credential.PasswordHasher) SignupServiceOption {
	return func(s *SignupService) {
		s.hasher = h
	}
}

func WithPasswordPolicy(p credential.PasswordPolicy) SignupServiceOption {
	return func(s *SignupService) {
		s.policy = p
	}
}

// WithDeviceGuard refuses registrations from banned devices
func WithDeviceGuard(g *device.Guard) SignupServiceOption {
	return func(s *SignupService) {
		s.devices = g
	}
}

// WithSessionManager signs the new account in after registration
func WithSessionManager(m *sessions.Manager, ttl time.Duration) SignupServiceOption {
	return func(s *SignupService) {
		s.sessions = m
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithAuditLogger(l *audit.Logger) SignupServiceOption {
	return func(s *SignupService) {
		s.audit = l
	}
}

func WithRegistrationEnabled(enabled bool) SignupServiceOption {
	return func(s *SignupService) {
		s.registrationEnabled = enabled
	}
}

// WithReservedUsernames refuses names that only the operator may hold, such as the
// configured owner. Matching ignores case.
func WithReservedUsernames(names ...string) SignupServiceOption {
	return func(s *SignupService) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				s.reserved = append(s.reserved, name)
			}
		}
	}
}

// RegisterUserRequest represents a user registration request
type RegisterUserRequest struct {
	Username    string
	Email       string
	Password    string
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

// RegisterUserResult represents the result of user registration. Token is empty
// when no session manager is configured or the session could not be issued.
type RegisterUserResult struct {
	UserID    uuid.UUID
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// IsRegistrationEnabled returns whether registration is enabled
func (s *SignupService) IsRegistrationEnabled() bool {
	return s.registrationEnabled
}

// GetPasswordPolicy returns the password complexity requirements
func (s *SignupService) GetPasswordPolicy() credential.PasswordPolicy {
	return s.policy
}

// ValidateRegistration returns every problem with the submitted fields
func ValidateRegistration(username, email string) []string {
	var problems []string
	if n := len(username); n < MinUsernameLength {
		problems = append(problems, fmt.Sprintf("Username must be at least %d characters", MinUsernameLength))
	} else if n > MaxUsernameLength {
		problems = append(problems, fmt.Sprintf("Username must not exceed %d characters", MaxUsernameLength))
	}
	if username != "" && !usernamePattern.MatchString(username) {
		problems = append(problems, "Username can only contain letters, numbers, underscores, and hyphens")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		problems = append(problems, "Invalid email address")
	}
	return problems
}

// RegisterUser creates an account and, when a session manager is configured, signs it in
func (s *SignupService) RegisterUser(ctx context.Context, req RegisterUserRequest) (*RegisterUserResult, error) {
	if !s.registrationEnabled {
		return nil, apperrors.Forbidden("Registration is disabled")
	}

	if s.devices != nil {
		ban, err := s.devices.Check(ctx, req.Fingerprint, req.IPAddress, nil)
		if err != nil {
			return nil, apperrors.InternalWrap(err, "failed to check device ban")
		}
		if ban != nil {
			slog.Warn("Registration from banned device", "ban_id", ban.ID, "ip", req.IPAddress)
			return nil, device.Denied(*ban)
		}
	}

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if problems := ValidateRegistration(username, email); len(problems) > 0 {
		return nil, apperrors.ValidationFailed(strings.Join(problems, ", "), problems)
	}
	if problems := s.policy.Check(req.Password); len(problems) > 0 {
		return nil, apperrors.New(apperrors.ErrCodePasswordComplexity, "Password does not meet requirements").
			WithDetail("problems", problems)
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to hash password")
	}
	u, err := s.users.Create(ctx, user.CreateParams{Username: username, Email: email, PasswordHash: hash})
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, apperrors.InternalWrap(err, "failed to create user")
	}

	slog.Info("User registered", "user_id", u.ID, "username", u.Username)
	s.audit.LogUser(ctx, u.ID, audit.ActionRegister, "New account registered")

	result := &RegisterUserResult{UserID: u.ID, Username: u.Username, Email: u.Email}
	if s.sessions != nil {
		session, err := s.sessions.Issue(ctx, u.ID, req.IPAddress, req.UserAgent, s.sessionTTL)
		if err != nil {
			slog.Error("Failed to issue session after registration", "user_id", u.ID, "err", err)
			return result, nil
		}
		result.Token = session.Token
		result.ExpiresAt = session.ExpiresAt
	}
	return result, nil
}

func (s *SignupService) ensureAvailable(ctx context.Context, username, email string) error {
	for _, name := range s.reserved {
		if strings.EqualFold(name, username) {
			slog.Warn("Registration with reserved username refused", "username", username)
			return apperrors.New(apperrors.ErrCodeUserAlreadyExists, "Username already exists")
		}
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return apperrors.New(apperrors.ErrCodeUserAlreadyExists, "Username already exists")
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return apperrors.InternalWrap(err, "failed to check username")
	}

	_, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		return apperrors.New(apperrors.ErrCodeUserAlreadyExists, "Email already registered")
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return apperrors.InternalWrap(err, "failed to check email")
	}
	return nil
}

// conflictError maps the store's uniqueness errors, which fire when two registrations race
func conflictError(err error) error {
	switch {
	case errors.Is(err, user.ErrUsernameTaken):
		return apperrors.New(apperrors.ErrCodeUserAlreadyExists, "Username already exists")
	case errors.Is(err, user.ErrEmailTaken):
		return apperrors.New(apperrors.ErrCodeUserAlreadyExists, "Email already registered")
	}
	return nil
}
