package loginflow

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/lockout"
	"github.com/mytad/game-auth/pkg/ratelimit"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/twofa"
	"github.com/mytad/game-auth/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodPassword = "Correct-H0rse-Battery"

type sentAlert struct {
	to, ip string
}

type fakeAlerter struct {
	sent chan sentAlert
}

func (f *fakeAlerter) SendLoginAlert(to, username, ip, userAgent string, at time.Time) error {
	f.sent <- sentAlert{to: to, ip: ip}
	return nil
}

type fixture struct {
	svc      *Service
	users    *user.InMemoryRepository
	audits   *audit.InMemoryRepository
	attempts *ratelimit.InMemoryAttemptRepository
	devices  *device.Guard
	lockout  *lockout.Guard
	sessions *sessions.Manager
	twofa    *twofa.Service
	alerts   *fakeAlerter
	hasher   credential.PasswordHasher
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		hasher: credential.NewBcryptHasher(4),
		alerts: &fakeAlerter{sent: make(chan sentAlert, 16)},
	}
	clock := func() time.Time { return f.now }

	f.users = user.NewInMemoryRepository()
	f.audits = audit.NewInMemoryRepository(f.users)
	auditLogger := audit.NewLogger(f.audits).WithClock(clock)
	f.attempts = ratelimit.NewInMemoryAttemptRepository()
	f.devices = device.NewGuard(device.NewInMemoryBanRepository(), device.NewInMemoryExclusionRepository(f.users)).WithClock(clock)
	f.lockout = lockout.NewGuard(f.users, lockout.Policy{}).WithClock(clock)
	f.sessions = sessions.NewManager(sessions.NewInMemoryRepository()).WithClock(clock)
	f.twofa = twofa.NewService(f.users, twofa.NewInMemoryBackupCodeRepository(), twofa.NewInMemoryStore().WithClock(clock),
		f.hasher, twofa.NewChallengeSigner("loginflow-test-secret-0123456789"), auditLogger, twofa.Options{}).WithClock(clock)

	f.svc = NewService(ServiceDependencies{
		Users:     f.users,
		Devices:   f.devices,
		Attempts:  ratelimit.NewAttemptLimiter(f.attempts, ratelimit.WithClock(clock)),
		Lockout:   f.lockout,
		Hasher:    f.hasher,
		TwoFactor: f.twofa,
		Sessions:  f.sessions,
		Audit:     auditLogger,
		Alerts:    f.alerts,
		Now:       clock,
	})
	return f
}

func (f *fixture) createUser(t *testing.T, username string) user.User {
	t.Helper()
	hash, err := f.hasher.Hash(goodPassword)
	require.NoError(t, err)
	u, err := f.users.Create(context.Background(), user.CreateParams{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(username, password, ip string) (Result, error) {
	return f.svc.Login(context.Background(), Request{
		Username:    username,
		Password:    password,
		IPAddress:   ip,
		UserAgent:   "test-agent",
		Fingerprint: "fp-" + ip,
	})
}

func (f *fixture) actions(t *testing.T, u user.User) map[string]int {
	t.Helper()
	entries, err := f.audits.Query(context.Background(), audit.Filter{UserID: &u.ID}.Normalize())
	require.NoError(t, err)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Action]++
	}
	return counts
}

func statusOf(err error) int {
	return apperrors.MapErrorCodeToHTTPStatus(apperrors.GetCode(err))
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	result, err := f.login("alice", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, result.RequiresTwoFA)
	require.NotNil(t, result.Session)
	assert.Nil(t, result.RememberSession)
	assert.Equal(t, alice.ID, result.User.ID)
	assert.Equal(t, f.now.Add(DefaultSessionTTL), result.Session.ExpiresAt)

	session, err := f.sessions.Validate(ctx, result.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, session.UserID)

	stored, err := f.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, 1, f.actions(t, alice)[audit.ActionLogin])

	attempts := f.attempts.All()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)

	assert.True(t, result.NewIP)
	select {
	case alert := <-f.alerts.sent:
		assert.Equal(t, sentAlert{to: "alice@example.com", ip: "1.2.3.4"}, alert)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a login alert for the first address")
	}

	again, err := f.login("alice", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, again.NewIP, "known address")
}

func TestLogin_RememberMe(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice")

	result, err := f.svc.Login(context.Background(), Request{
		Username: "alice", Password: goodPassword, RememberMe: true, IPAddress: "1.2.3.4",
	})
	require.NoError(t, err)
	require.NotNil(t, result.RememberSession)
	assert.NotEqual(t, result.Session.Token, result.RememberSession.Token)
	assert.Equal(t, f.now.Add(DefaultRememberTTL), result.RememberSession.ExpiresAt)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice")

	_, unknownErr := f.login("mallory", goodPassword, "1.2.3.4")
	_, wrongErr := f.login("alice", "wrong-password", "1.2.3.4")
	_, caseErr := f.login("Alice", goodPassword, "1.2.3.4")

	for _, err := range []error{unknownErr, wrongErr, caseErr} {
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))
		var e *apperrors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, apperrors.ErrCodeInvalidCredentials, e.Code)
		assert.Equal(t, "Invalid username or password", e.Message)
	}
	assert.Len(t, f.attempts.All(), 3)

	_, err := f.login("", "", "1.2.3.4")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Len(t, f.attempts.All(), 4)
}

func TestLogin_LockoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	for i := 0; i < lockout.DefaultThreshold; i++ {
		_, err := f.login("alice", "wrong-password", "1.2.3.4")
		require.Equal(t, http.StatusUnauthorized, statusOf(err), "attempt %d", i+1)
	}
	actions := f.actions(t, alice)
	assert.Equal(t, 5, actions[audit.ActionLogin])
	assert.Equal(t, 1, actions[audit.ActionAccountLocked])

	// same IP is also over the per-IP limit; either way the answer is 429
	_, err := f.login("alice", goodPassword, "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))

	_, err = f.login("alice", goodPassword, "5.6.7.8")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserLocked), "correct password is refused while locked")
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.login("alice", goodPassword, "5.6.7.8")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserLocked))

	require.NoError(t, f.lockout.Unlock(ctx, alice.ID))
	_, err = f.login("alice", goodPassword, "5.6.7.8")
	require.NoError(t, err)
}

func TestLogin_LockExpires(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice")

	for i := 0; i < lockout.DefaultThreshold; i++ {
		_, _ = f.login("alice", "wrong-password", fmt.Sprintf("10.0.0.%d", i))
	}
	_, err := f.login("alice", goodPassword, "5.6.7.8")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserLocked))

	f.now = f.now.Add(lockout.DefaultDuration + time.Second)
	_, err = f.login("alice", goodPassword, "5.6.7.8")
	require.NoError(t, err)
}

func TestLogin_RateLimitPerIP(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice")

	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _ = f.login(fmt.Sprintf("ghost%d", i), goodPassword, "9.9.9.9")
	}
	_, err := f.login("alice", goodPassword, "9.9.9.9")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRateLimitExceeded))

	_, err = f.login("alice", goodPassword, "8.8.8.8")
	require.NoError(t, err, "other addresses are not limited")

	f.now = f.now.Add(DefaultAttemptWindow + time.Minute)
	_, err = f.login("alice", goodPassword, "9.9.9.9")
	require.NoError(t, err)
}

func TestLogin_DisabledAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	require.NoError(t, f.users.SetActive(ctx, alice.ID, false, nil))
	_, err := f.login("alice", goodPassword, "1.2.3.4")
	var e *apperrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperrors.ErrCodeUserDisabled, e.Code)
	assert.Equal(t, true, e.Details["is_permanent"])
	assert.Equal(t, "account_banned", e.Details["reason"])

	until := f.now.Add(48 * time.Hour)
	require.NoError(t, f.users.SetActive(ctx, alice.ID, false, &until))
	_, err = f.login("alice", "wrong-password", "1.2.3.4")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperrors.ErrCodeUserDisabled, e.Code, "disabled is reported before the password is checked")
	assert.Equal(t, false, e.Details["is_permanent"])
	assert.Equal(t, until.Format(time.RFC3339), e.Details["banned_until"])

	// an elapsed temporary ban on an inactive account reads as permanent
	f.now = f.now.Add(72 * time.Hour)
	_, err = f.login("alice", goodPassword, "1.2.3.4")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, true, e.Details["is_permanent"])
}

func TestLogin_DeviceBanAndExclusion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := f.createUser(t, "bob")
	f.createUser(t, "carol")

	require.NoError(t, f.devices.AddExclusion(ctx, bob.ID, "Protected", nil))
	_, err := f.devices.BanDevice(ctx, device.BanParams{Fingerprint: "shared-fp", Reason: "cheating"})
	require.NoError(t, err)

	login := func(username string) (Result, error) {
		return f.svc.Login(ctx, Request{Username: username, Password: goodPassword, IPAddress: "4.4.4.4", Fingerprint: "shared-fp"})
	}

	result, err := login("bob")
	require.NoError(t, err)
	assert.NotNil(t, result.Session)

	for _, name := range []string{"carol", "nobody"} {
		_, err = login(name)
		assert.Equal(t, http.StatusForbidden, statusOf(err), name)
		ban, ok := device.BanFromError(err)
		require.True(t, ok)
		assert.True(t, ban.IsPermanent)
	}

	_, err = f.svc.Login(ctx, Request{Username: "carol", Password: goodPassword, IPAddress: "4.4.4.4", Fingerprint: "other-fp"})
	require.NoError(t, err)
}

func enableTwoFactor(t *testing.T, f *fixture, u user.User) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := f.twofa.BeginSetup(ctx, u.ID)
	require.NoError(t, err)
	code, err := twofa.GenerateTotpPasscode(setup.Secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.twofa.ConfirmSetup(ctx, u.ID, setup.Secret, code))
	return setup.Secret, setup.BackupCodes
}

func TestLogin_TwoFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dave := f.createUser(t, "dave")
	secret, backupCodes := enableTwoFactor(t, f, dave)

	pending, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, pending.RequiresTwoFA)
	assert.NotEmpty(t, pending.ChallengeToken)
	assert.Nil(t, pending.Session, "no session before the second factor")
	assert.Equal(t, f.now.Add(twofa.DefaultChallengeTTL), pending.ChallengeExpiresAt)

	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: "000000", IPAddress: "1.2.3.4"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	code, err := twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	verified, err := f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	require.NotNil(t, verified.Session)
	assert.Equal(t, dave.ID, verified.User.ID)

	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCode2FAInvalid), "a challenge completes once")

	// backup codes are single use across logins
	first, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: first.ChallengeToken, BackupCode: backupCodes[0], IPAddress: "1.2.3.4"})
	require.NoError(t, err)

	second, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: second.ChallengeToken, BackupCode: backupCodes[0], IPAddress: "1.2.3.4"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCode2FAInvalid))
}

func TestVerify2FA_RememberMeAndExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dave := f.createUser(t, "dave")
	secret, _ := enableTwoFactor(t, f, dave)

	pending, err := f.svc.Login(ctx, Request{Username: "dave", Password: goodPassword, RememberMe: true, IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	code, err := twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	verified, err := f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	assert.NotNil(t, verified.RememberSession, "remember-me carries across the challenge")

	stale, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	f.now = f.now.Add(twofa.DefaultChallengeTTL + time.Second)
	code, err = twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: stale.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCode2FAInvalid))

	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: stale.ChallengeToken})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestVerify2FA_AccountDisabledWhilePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dave := f.createUser(t, "dave")
	secret, _ := enableTwoFactor(t, f, dave)

	pending, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	require.NoError(t, f.users.SetActive(ctx, dave.ID, false, nil))

	code, err := twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserDisabled))
}

func TestVerify2FA_AccountLockedWhilePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dave := f.createUser(t, "dave")
	secret, _ := enableTwoFactor(t, f, dave)

	pending, err := f.login("dave", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	until := f.now.Add(time.Hour)
	require.NoError(t, f.users.SetLockedUntil(ctx, dave.ID, &until))

	code, err := twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	result, err := f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: code, IPAddress: "1.2.3.4"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUserLocked))
	assert.Nil(t, result.Session)
}

func TestVerify2FA_WrongCodesCountAgainstIP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dave := f.createUser(t, "dave")
	secret, _ := enableTwoFactor(t, f, dave)
	const ip = "9.9.9.9"

	held, err := f.login("dave", goodPassword, ip)
	require.NoError(t, err)

	for i := 0; i < DefaultMaxAttempts; i++ {
		pending, err := f.login("dave", goodPassword, ip)
		require.NoError(t, err, "attempt %d", i)
		_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: pending.ChallengeToken, TwoFACode: "000000", IPAddress: ip})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCode2FAInvalid))
	}

	var failed int
	for _, a := range f.attempts.All() {
		if a.IPAddress == ip && !a.Success && a.Reason == "Invalid 2FA code" {
			failed++
		}
	}
	assert.Equal(t, DefaultMaxAttempts, failed)

	code, err := twofa.GenerateTotpPasscode(secret, f.now)
	require.NoError(t, err)
	_, err = f.svc.Verify2FA(ctx, Request{ChallengeToken: held.ChallengeToken, TwoFACode: code, IPAddress: ip})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRateLimitExceeded), "a valid code is refused once the IP is limited")

	_, err = f.login("dave", goodPassword, ip)
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))

	_, err = f.login("dave", goodPassword, "5.6.7.8")
	require.NoError(t, err, "other addresses are unaffected")
}

func TestSessionEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	result, err := f.login("alice", goodPassword, "1.2.3.4")
	require.NoError(t, err)
	token := result.Session.Token

	session, u, err := f.svc.CurrentSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)
	assert.Equal(t, token, session.Token)

	refreshed, err := f.svc.Refresh(ctx, token, "1.2.3.4", "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, token, refreshed.Token)
	_, _, err = f.svc.CurrentSession(ctx, token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid), "refresh retires the old token")
	_, err = f.svc.Refresh(ctx, token, "", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid))

	require.NoError(t, f.svc.Logout(ctx, refreshed.Token, &alice.ID))
	_, _, err = f.svc.CurrentSession(ctx, refreshed.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid))
	require.NoError(t, f.svc.Logout(ctx, "garbage", nil))

	actions := f.actions(t, alice)
	assert.Equal(t, 1, actions[audit.ActionSessionRefresh])
	assert.Equal(t, 1, actions[audit.ActionLogout])
}
