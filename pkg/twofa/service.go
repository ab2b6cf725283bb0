package twofa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/user"
)

const (
	DefaultChallengeTTL  = 10 * time.Minute
	DefaultSetupTTL      = 10 * time.Minute
	MaxChallengeFailures = 5
)

// Verification methods reported by Verify
const (
	MethodTOTP   = "totp"
	MethodBackup = "backup_code"
)

// UserStore is the part of the user repository 2FA needs
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret string) error
}

// Setup is returned to the client when enrollment begins
type Setup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// Options configures a Service
type Options struct {
	Issuer       string
	ChallengeTTL time.Duration
	SetupTTL     time.Duration
}

// Service drives 2FA enrollment and the second step of login.
type Service struct {
	users  UserStore
	codes  BackupCodeRepository
	store  Store
	hasher credential.PasswordHasher
	signer *ChallengeSigner
	audit  *audit.Logger
	opts   Options
	now    func() time.Time
}

func NewService(users UserStore, codes BackupCodeRepository, store Store, hasher credential.PasswordHasher, signer *ChallengeSigner, auditLogger *audit.Logger, opts Options) *Service {
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = DefaultChallengeTTL
	}
	if opts.SetupTTL <= 0 {
		opts.SetupTTL = DefaultSetupTTL
	}
	return &Service{
		users:  users,
		codes:  codes,
		store:  store,
		hasher: hasher,
		signer: signer,
		audit:  auditLogger,
		opts:   opts,
		now:    time.Now,
	}
}

// WithClock replaces time.Now, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func invalidCode() *apperrors.Error {
	return apperrors.New(apperrors.ErrCode2FAInvalid, "Invalid verification code")
}

// BeginSetup generates a secret and backup codes and holds them until ConfirmSetup.
// Calling it again replaces the pending secret.
func (s *Service) BeginSetup(ctx context.Context, userID uuid.UUID) (Setup, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Setup{}, fmt.Errorf("failed to load user: %w", err)
	}
	if u.TwoFactorEnabled {
		return Setup{}, apperrors.Conflict("Two-factor authentication is already enabled")
	}

	key, err := GenerateTotpKey(s.opts.Issuer, u.Username)
	if err != nil {
		return Setup{}, err
	}
	codes, err := GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return Setup{}, err
	}

	pending := PendingSetup{
		UserID:          userID,
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.SaveSetup(ctx, pending, s.opts.SetupTTL); err != nil {
		return Setup{}, err
	}
	slog.Info("Started 2FA setup", "user_id", userID)
	return Setup{Secret: pending.Secret, ProvisioningURI: pending.ProvisioningURI, BackupCodes: codes}, nil
}

// ConfirmSetup enables 2FA when code is valid for the pending secret.
func (s *Service) ConfirmSetup(ctx context.Context, userID uuid.UUID, secret, code string) error {
	pending, err := s.store.GetSetup(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.InvalidInput("secret", "no pending two-factor setup, start again")
		}
		return err
	}
	if secret != "" && secret != pending.Secret {
		return apperrors.InvalidInput("secret", "does not match the pending setup")
	}
	if !ValidateTotpPasscode(pending.Secret, code, s.now()) {
		s.audit.LogUser(ctx, userID, audit.Action2FAFailed, "2FA setup verification failed")
		return invalidCode()
	}

	hashes := make([]string, len(pending.BackupCodes))
	for i, c := range pending.BackupCodes {
		h, err := s.hasher.Hash(c)
		if err != nil {
			return fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes[i] = h
	}
	if err := s.codes.Replace(ctx, userID, hashes, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to store backup codes: %w", err)
	}
	if err := s.users.SetTwoFactor(ctx, userID, true, pending.Secret); err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	if err := s.store.DeleteSetup(ctx, userID); err != nil {
		slog.Warn("Failed to clear pending 2FA setup", "user_id", userID, "err", err)
	}

	s.audit.LogUser(ctx, userID, audit.Action2FAEnabled, "Two-factor authentication enabled")
	slog.Info("Enabled 2FA", "user_id", userID)
	return nil
}

// Verify checks a TOTP code first and then a backup code. A matching backup code is consumed.
// It returns the method that matched, or "" when neither did.
func (s *Service) Verify(ctx context.Context, u user.User, code, backupCode string) (string, error) {
	if !u.TwoFactorEnabled {
		return "", nil
	}
	if code != "" && ValidateTotpPasscode(u.TwoFactorSecret, code, s.now()) {
		return MethodTOTP, nil
	}
	if backupCode == "" {
		return "", nil
	}

	normalized := NormalizeBackupCode(backupCode)
	codes, err := s.codes.ListUnused(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load backup codes: %w", err)
	}
	for _, c := range codes {
		if !s.hasher.Verify(normalized, c.CodeHash) {
			continue
		}
		used, err := s.codes.Consume(ctx, c.ID, s.now().UTC())
		if err != nil {
			return "", fmt.Errorf("failed to consume backup code: %w", err)
		}
		if used {
			return MethodBackup, nil
		}
		return "", nil
	}
	return "", nil
}

// Disable turns 2FA off after one more successful verification.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code, backupCode string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !u.TwoFactorEnabled {
		return apperrors.InvalidInput("2fa", "two-factor authentication is not enabled")
	}
	method, err := s.Verify(ctx, u, code, backupCode)
	if err != nil {
		return err
	}
	if method == "" {
		s.audit.LogUser(ctx, userID, audit.Action2FAFailed, "2FA disable verification failed")
		return invalidCode()
	}

	if err := s.users.SetTwoFactor(ctx, userID, false, ""); err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	if err := s.codes.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	s.audit.LogUser(ctx, userID, audit.Action2FADisabled, "Two-factor authentication disabled")
	return nil
}

// BeginChallenge records a pending second step and returns the token the client sends back.
func (s *Service) BeginChallenge(ctx context.Context, userID uuid.UUID, ip, userAgent string, rememberMe bool) (string, Challenge, error) {
	now := s.now().UTC()
	c := Challenge{
		ID:         uuid.New(),
		UserID:     userID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		RememberMe: rememberMe,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.opts.ChallengeTTL),
	}
	if err := s.store.SaveChallenge(ctx, c, s.opts.ChallengeTTL); err != nil {
		return "", Challenge{}, err
	}
	token, err := s.signer.Sign(c)
	if err != nil {
		return "", Challenge{}, err
	}
	return token, c, nil
}

// CompleteChallenge verifies the second factor for the challenge behind token.
// A challenge completes at most once and is discarded after MaxChallengeFailures wrong codes.
// Every failure, including an unknown or expired challenge, is the same invalid-code error.
func (s *Service) CompleteChallenge(ctx context.Context, token, code, backupCode string) (Challenge, user.User, error) {
	id, err := s.signer.Parse(token, s.now())
	if err != nil {
		return Challenge{}, user.User{}, invalidCode()
	}
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Challenge{}, user.User{}, invalidCode()
		}
		return Challenge{}, user.User{}, err
	}
	u, err := s.users.GetByID(ctx, c.UserID)
	if err != nil {
		return Challenge{}, user.User{}, fmt.Errorf("failed to load user: %w", err)
	}

	method, err := s.Verify(ctx, u, code, backupCode)
	if err != nil {
		return Challenge{}, user.User{}, err
	}
	if method == "" {
		s.audit.LogUser(ctx, u.ID, audit.Action2FAFailed, "Invalid 2FA code")
		failures, err := s.store.IncrementFailures(ctx, id)
		if err != nil {
			slog.Error("Failed to count 2FA failure", "challenge_id", id, "err", err)
		} else if failures >= MaxChallengeFailures {
			if _, err := s.store.TakeChallenge(ctx, id); err != nil {
				slog.Error("Failed to discard 2FA challenge", "challenge_id", id, "err", err)
			}
			slog.Warn("Discarded 2FA challenge after repeated failures", "user_id", u.ID)
		}
		return Challenge{}, user.User{}, invalidCode()
	}

	taken, err := s.store.TakeChallenge(ctx, id)
	if err != nil {
		return Challenge{}, user.User{}, err
	}
	if !taken {
		return Challenge{}, user.User{}, invalidCode()
	}

	if method == MethodBackup {
		s.audit.LogUser(ctx, u.ID, audit.Action2FAVerifiedBackup, "2FA verified with backup code")
	} else {
		s.audit.LogUser(ctx, u.ID, audit.Action2FAVerified, "2FA verified")
	}
	return c, u, nil
}
