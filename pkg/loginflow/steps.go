package loginflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/user"
)

// StepData keys
const (
	stepDataNewIP = "new_ip"
)

// DeviceBanStep rejects banned devices before the username is looked at.
// The username is only resolved once a ban matched, to honour the exclusion list.
type DeviceBanStep struct{}

func NewDeviceBanStep() *DeviceBanStep {
	return &DeviceBanStep{}
}

func (s *DeviceBanStep) Name() string {
	return "device_ban"
}

func (s *DeviceBanStep) Order() int {
	return OrderDeviceBan
}

func (s *DeviceBanStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.Services.Devices == nil
}

func (s *DeviceBanStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	req := flowContext.Request
	devices := flowContext.Services.Devices

	ban, err := devices.IsBanned(ctx, req.Fingerprint, req.IPAddress)
	if err != nil {
		return nil, err
	}
	if ban == nil {
		return &StepResult{Continue: true}, nil
	}

	candidate, err := flowContext.Services.Users.GetByUsername(ctx, req.Username)
	switch {
	case err == nil:
		excluded, err := devices.IsExcluded(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ban exclusion: %w", err)
		}
		if excluded {
			slog.Info("Device ban bypassed for excluded account", "user_id", candidate.ID, "ban_id", ban.ID)
			return &StepResult{Continue: true}, nil
		}
	case !errors.Is(err, user.ErrUserNotFound):
		return nil, err
	}

	slog.Warn("Login blocked by device ban", "ip", req.IPAddress, "ban_id", ban.ID)
	flowContext.Services.Audit.Log(ctx, nil, audit.ActionLoginError, "Login blocked: device banned")
	return flowContext.Fail(ctx, "Device banned", device.Denied(*ban)), nil
}

// RateLimitStep rejects an IP with too many recent failures
type RateLimitStep struct{}

func NewRateLimitStep() *RateLimitStep {
	return &RateLimitStep{}
}

func (s *RateLimitStep) Name() string {
	return "rate_limit"
}

func (s *RateLimitStep) Order() int {
	return OrderRateLimit
}

func (s *RateLimitStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *RateLimitStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	policy := flowContext.Services.Policy
	ip := flowContext.Request.IPAddress
	if !flowContext.Services.Attempts.TooManyFailures(ctx, ip, policy.MaxAttempts, policy.AttemptWindow) {
		return &StepResult{Continue: true}, nil
	}

	slog.Warn("Login rate limit exceeded", "ip", ip)
	flowContext.Services.Audit.Log(ctx, nil, audit.ActionLoginError, "Login blocked: rate limit exceeded")
	return flowContext.Fail(ctx, "Rate limit exceeded",
		apperrors.RateLimitExceeded("Too many failed login attempts. Please try again later.")), nil
}

// UserLookupStep resolves the submitted username. An unknown username fails
// exactly like a wrong password.
type UserLookupStep struct{}

func NewUserLookupStep() *UserLookupStep {
	return &UserLookupStep{}
}

func (s *UserLookupStep) Name() string {
	return "user_lookup"
}

func (s *UserLookupStep) Order() int {
	return OrderUserLookup
}

func (s *UserLookupStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *UserLookupStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	services := flowContext.Services
	u, err := services.Users.GetByUsername(ctx, flowContext.Request.Username)
	if errors.Is(err, user.ErrUserNotFound) {
		if services.dummyHash != "" {
			services.Hasher.Verify(flowContext.Request.Password, services.dummyHash)
		}
		slog.Info("Login failed", "reason", "user not found", "ip", flowContext.Request.IPAddress)
		services.Audit.Log(ctx, nil, audit.ActionLoginError, "Login failed: unknown username")
		return flowContext.Fail(ctx, "User not found", invalidCredentials()), nil
	}
	if err != nil {
		return nil, err
	}

	flowContext.User = &u
	return &StepResult{Continue: true}, nil
}

// AccountStatusStep rejects disabled accounts, telling temporary restrictions from permanent ones
type AccountStatusStep struct{}

func NewAccountStatusStep() *AccountStatusStep {
	return &AccountStatusStep{}
}

func (s *AccountStatusStep) Name() string {
	return "account_status"
}

func (s *AccountStatusStep) Order() int {
	return OrderAccountStatus
}

func (s *AccountStatusStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil
}

func (s *AccountStatusStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	u := flowContext.User
	if u.IsActive {
		return &StepResult{Continue: true}, nil
	}

	now := flowContext.Services.now()
	var err *apperrors.Error
	if u.DisabledPermanently(now) {
		err = apperrors.New(apperrors.ErrCodeUserDisabled, "Your account has been permanently restricted.").
			WithDetail("is_permanent", true)
	} else {
		until := u.AccountLockedUntil.UTC()
		err = apperrors.Newf(apperrors.ErrCodeUserDisabled, "Your account is temporarily restricted until %s.", until.Format(time.RFC1123)).
			WithDetail("is_permanent", false).
			WithDetail("banned_until", until.Format(time.RFC3339))
	}
	err.WithDetail("reason", "account_banned")

	slog.Info("Login failed", "reason", "account disabled", "user_id", u.ID)
	flowContext.Services.Audit.LogUser(ctx, u.ID, audit.ActionLogin, "Login failed: account disabled")
	return flowContext.Fail(ctx, "Account disabled", err), nil
}

// LockoutStep rejects accounts with a running lock, even before the password is checked
type LockoutStep struct{}

func NewLockoutStep() *LockoutStep {
	return &LockoutStep{}
}

func (s *LockoutStep) Name() string {
	return "lockout"
}

func (s *LockoutStep) Order() int {
	return OrderLockout
}

func (s *LockoutStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil
}

func (s *LockoutStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	u := flowContext.User
	if !flowContext.Services.Lockout.IsLocked(*u) {
		return &StepResult{Continue: true}, nil
	}

	until := u.AccountLockedUntil.UTC()
	minutes := int(until.Sub(flowContext.Services.now()).Minutes()) + 1
	err := apperrors.Newf(apperrors.ErrCodeUserLocked,
		"Your account has been temporarily locked. Please try again in %d minutes.", minutes).
		WithDetail("locked_until", until.Format(time.RFC3339))

	slog.Info("Login failed", "reason", "account locked", "user_id", u.ID)
	flowContext.Services.Audit.LogUser(ctx, u.ID, audit.ActionLogin, "Login failed: account locked")
	return flowContext.Fail(ctx, "Account locked", err), nil
}

// PasswordCheckStep verifies the password and feeds failures to the lockout counter
type PasswordCheckStep struct{}

func NewPasswordCheckStep() *PasswordCheckStep {
	return &PasswordCheckStep{}
}

func (s *PasswordCheckStep) Name() string {
	return "password_check"
}

func (s *PasswordCheckStep) Order() int {
	return OrderPasswordCheck
}

func (s *PasswordCheckStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil
}

func (s *PasswordCheckStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	services := flowContext.Services
	u := flowContext.User
	if services.Hasher.Verify(flowContext.Request.Password, u.PasswordHash) {
		return &StepResult{Continue: true}, nil
	}

	slog.Info("Login failed", "reason", "invalid password", "user_id", u.ID)
	services.Audit.LogUser(ctx, u.ID, audit.ActionLogin, "Login failed: invalid password")

	count, lockedUntil, err := services.Lockout.RecordFailure(ctx, u.ID)
	if err != nil {
		slog.Error("Failed to record failed login", "user_id", u.ID, "err", err)
	} else if lockedUntil != nil {
		services.Audit.LogUser(ctx, u.ID, audit.ActionAccountLocked,
			fmt.Sprintf("Account locked until %s after %d failed login attempts", lockedUntil.Format(time.RFC3339), count))
	}
	return flowContext.Fail(ctx, "Invalid password", invalidCredentials()), nil
}

// SuccessRecordingStep resets the failure counter, stamps last_login and writes the success rows
type SuccessRecordingStep struct{}

func NewSuccessRecordingStep() *SuccessRecordingStep {
	return &SuccessRecordingStep{}
}

func (s *SuccessRecordingStep) Name() string {
	return "success_recording"
}

func (s *SuccessRecordingStep) Order() int {
	return OrderSuccessRecording
}

func (s *SuccessRecordingStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil
}

func (s *SuccessRecordingStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	services := flowContext.Services
	u := flowContext.User
	now := services.now()
	if err := services.Users.RecordLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.FailedLoginAttempts = 0
	u.LastLogin = &now

	flowContext.Succeed(ctx)
	slog.Info("Successful login", "user_id", u.ID, "ip", flowContext.Request.IPAddress)
	services.Audit.LogUser(ctx, u.ID, audit.ActionLogin, "Successful login")

	flowContext.Result.User = *u
	return &StepResult{Continue: true}, nil
}

// TwoFARequirementStep parks the login in a pending challenge when the account has 2FA
type TwoFARequirementStep struct{}

func NewTwoFARequirementStep() *TwoFARequirementStep {
	return &TwoFARequirementStep{}
}

func (s *TwoFARequirementStep) Name() string {
	return "twofa_requirement"
}

func (s *TwoFARequirementStep) Order() int {
	return OrderTwoFARequirement
}

func (s *TwoFARequirementStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil || !flowContext.User.TwoFactorEnabled
}

func (s *TwoFARequirementStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	if flowContext.Services.TwoFactor == nil {
		return nil, errors.New("account requires 2FA but no challenge service is configured")
	}
	req := flowContext.Request
	token, challenge, err := flowContext.Services.TwoFactor.BeginChallenge(ctx, flowContext.User.ID, req.IPAddress, req.UserAgent, req.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("failed to start 2FA challenge: %w", err)
	}

	flowContext.Result.RequiresTwoFA = true
	flowContext.Result.ChallengeToken = token
	flowContext.Result.ChallengeExpiresAt = challenge.ExpiresAt
	return &StepResult{EarlyReturn: true}, nil
}

// ChallengeValidationStep resumes a pending login from its challenge token and second factor
type ChallengeValidationStep struct{}

func NewChallengeValidationStep() *ChallengeValidationStep {
	return &ChallengeValidationStep{}
}

func (s *ChallengeValidationStep) Name() string {
	return "challenge_validation"
}

func (s *ChallengeValidationStep) Order() int {
	return OrderChallengeValidation
}

func (s *ChallengeValidationStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *ChallengeValidationStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	req := flowContext.Request
	challenge, u, err := flowContext.Services.TwoFactor.CompleteChallenge(ctx, req.ChallengeToken, req.TwoFACode, req.BackupCode)
	if err != nil {
		var appErr *apperrors.Error
		if apperrors.As(err, &appErr) {
			slog.Info("Two-factor verification failed", "ip", req.IPAddress, "code", appErr.Code)
			return flowContext.Fail(ctx, "Invalid 2FA code", appErr), nil
		}
		return nil, err
	}

	flowContext.User = &u
	flowContext.Request.Username = u.Username
	flowContext.Request.RememberMe = challenge.RememberMe
	if flowContext.Request.UserAgent == "" {
		flowContext.Request.UserAgent = challenge.UserAgent
	}
	flowContext.Result.User = u
	return &StepResult{Continue: true}, nil
}

// NewIPDetectionStep notes whether the account has had a session from this address before.
// It must run before SessionIssueStep creates one.
type NewIPDetectionStep struct{}

func NewNewIPDetectionStep() *NewIPDetectionStep {
	return &NewIPDetectionStep{}
}

func (s *NewIPDetectionStep) Name() string {
	return "new_ip_detection"
}

func (s *NewIPDetectionStep) Order() int {
	return OrderNewIPDetection
}

func (s *NewIPDetectionStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil || flowContext.Services.Alerts == nil
}

func (s *NewIPDetectionStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	seen, err := flowContext.Services.Sessions.SeenIP(ctx, flowContext.User.ID, flowContext.Request.IPAddress)
	if err != nil {
		slog.Warn("Failed to check login IP history", "user_id", flowContext.User.ID, "err", err)
		return &StepResult{Continue: true}, nil
	}
	flowContext.Result.NewIP = !seen
	return &StepResult{
		Continue: true,
		Data:     map[string]interface{}{stepDataNewIP: !seen},
	}, nil
}

// SessionIssueStep issues the session and, when asked, a long-lived remember-me session
type SessionIssueStep struct{}

func NewSessionIssueStep() *SessionIssueStep {
	return &SessionIssueStep{}
}

func (s *SessionIssueStep) Name() string {
	return "session_issue"
}

func (s *SessionIssueStep) Order() int {
	return OrderSessionIssue
}

func (s *SessionIssueStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.User == nil
}

func (s *SessionIssueStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	services := flowContext.Services
	req := flowContext.Request
	userID := flowContext.User.ID

	session, err := services.Sessions.Issue(ctx, userID, req.IPAddress, req.UserAgent, services.Policy.SessionTTL)
	if err != nil {
		return nil, err
	}
	flowContext.Result.Session = &session

	if req.RememberMe {
		remember, err := services.Sessions.Issue(ctx, userID, req.IPAddress, req.UserAgent, services.Policy.RememberTTL)
		if err != nil {
			return nil, err
		}
		flowContext.Result.RememberSession = &remember
	}
	return &StepResult{Continue: true}, nil
}

// LoginAlertStep mails a new-device notice in the background. Delivery never affects the login.
type LoginAlertStep struct{}

func NewLoginAlertStep() *LoginAlertStep {
	return &LoginAlertStep{}
}

func (s *LoginAlertStep) Name() string {
	return "login_alert"
}

func (s *LoginAlertStep) Order() int {
	return OrderLoginAlert
}

func (s *LoginAlertStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	newIP, _ := flowContext.StepData[stepDataNewIP].(bool)
	return !newIP || flowContext.User == nil || flowContext.Services.Alerts == nil
}

func (s *LoginAlertStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	alerts := flowContext.Services.Alerts
	u := *flowContext.User
	ip, userAgent := flowContext.Request.IPAddress, flowContext.Request.UserAgent
	at := flowContext.Services.now()

	go func() {
		if err := alerts.SendLoginAlert(u.Email, u.Username, ip, userAgent, at); err != nil {
			slog.Error("Failed to send login alert", "user_id", u.ID, "err", err)
		}
	}()
	return &StepResult{Continue: true}, nil
}
