package admin

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/lockout"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	users    *user.InMemoryRepository
	sessions *sessions.Manager
	devices  *device.Guard
	audits   *audit.InMemoryRepository
	owner    user.User
	mod      user.User
	alice    user.User
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.users = user.NewInMemoryRepository()
	mk := func(name string) user.User {
		u, err := f.users.Create(ctx, user.CreateParams{Username: name, Email: name + "@example.com", PasswordHash: "x"})
		require.NoError(t, err)
		return u
	}
	f.owner, f.mod, f.alice = mk("owner"), mk("mod"), mk("alice")

	f.audits = audit.NewInMemoryRepository(f.users)
	f.sessions = sessions.NewManager(sessions.NewInMemoryRepository()).WithClock(clock)
	f.devices = device.NewGuard(device.NewInMemoryBanRepository(), device.NewInMemoryExclusionRepository(f.users)).WithClock(clock)
	admins := NewInMemoryRepository()

	f.svc = NewService(ServiceParams{
		Admins:   admins,
		Users:    f.users,
		Lockout:  lockout.NewGuard(f.users, lockout.Policy{Threshold: 5, Duration: 30 * time.Minute}).WithClock(clock),
		Sessions: f.sessions,
		Devices:  f.devices,
		Hasher:   credential.NewBcryptHasher(4),
		Audit:    audit.NewLogger(f.audits).WithClock(clock),
	}).WithClock(clock)

	require.NoError(t, f.svc.SeedOwner(ctx, f.owner.ID))
	require.NoError(t, admins.Grant(ctx, Admin{UserID: f.mod.ID, GrantedBy: &f.owner.ID, GrantedAt: f.now}))
	return f
}

func (f *fixture) actionsBy(t *testing.T, id uuid.UUID) []string {
	entries, err := f.audits.Query(context.Background(), audit.Filter{UserID: &id}.Normalize())
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestSeedOwner_RefusesSecondOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.SeedOwner(ctx, f.alice.ID)
	assert.ErrorIs(t, err, ErrOwnerMismatch)
	excluded, err := f.devices.IsExcluded(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, excluded)

	require.NoError(t, f.svc.SeedOwner(ctx, f.owner.ID))
}

func TestAssertCanActOn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	authz := f.svc.Authorizer()

	tests := []struct {
		name   string
		actor  uuid.UUID
		target uuid.UUID
		action Action
		code   apperrors.ErrorCode
	}{
		{"admin bans player", f.mod.ID, f.alice.ID, ActionBan, ""},
		{"player is not admin", f.alice.ID, f.mod.ID, ActionBan, apperrors.ErrCodeForbidden},
		{"no self ban", f.mod.ID, f.mod.ID, ActionBan, apperrors.ErrCodeInvalidInput},
		{"no self reset", f.owner.ID, f.owner.ID, ActionResetPassword, apperrors.ErrCodeInvalidInput},
		{"self unlock allowed", f.mod.ID, f.mod.ID, ActionUnlock, ""},
		{"owner is protected", f.mod.ID, f.owner.ID, ActionMute, apperrors.ErrCodeForbidden},
		{"owner is protected from unban too", f.mod.ID, f.owner.ID, ActionUnban, apperrors.ErrCodeForbidden},
		{"only owner grants", f.mod.ID, f.alice.ID, ActionGrantAdmin, apperrors.ErrCodeForbidden},
		{"owner grants", f.owner.ID, f.alice.ID, ActionGrantAdmin, ""},
		{"owner can act on other admins", f.owner.ID, f.mod.ID, ActionBan, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.AssertCanActOn(ctx, tt.actor, tt.target, tt.action)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
		})
	}

	isAdmin, err := authz.IsAdmin(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)
	isOwner, err := authz.IsOwner(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, isOwner)
}

func TestBanAndUnban(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := f.sessions.Issue(ctx, f.alice.ID, "1.1.1.1", "ua", time.Hour)
	require.NoError(t, err)

	res, err := f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionBan, UserID: f.alice.ID, Reason: "cheating", DurationHours: 48})
	require.NoError(t, err)
	assert.False(t, res.User.IsActive)
	require.NotNil(t, res.User.AccountLockedUntil)
	assert.Equal(t, f.now.Add(48*time.Hour), *res.User.AccountLockedUntil)
	assert.Equal(t, "alice", res.User.Username)

	_, err = f.sessions.Validate(ctx, s.Token)
	assert.ErrorIs(t, err, sessions.ErrInvalidSession)

	report, err := f.svc.BanReport(ctx, f.mod.ID)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, user.BanStatusTemporary, report[0].BanStatus)

	f.now = f.now.Add(72 * time.Hour)
	report, err = f.svc.BanReport(ctx, f.mod.ID)
	require.NoError(t, err)
	assert.Equal(t, user.BanStatusExpired, report[0].BanStatus)

	res, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionUnban, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)
	assert.Nil(t, res.User.AccountLockedUntil)

	res, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionDisable, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.Equal(t, DefaultReason, res.Reason)
	report, err = f.svc.BanReport(ctx, f.mod.ID)
	require.NoError(t, err)
	assert.Equal(t, user.BanStatusPermanent, report[0].BanStatus)

	assert.Contains(t, f.actionsBy(t, f.mod.ID), audit.ActionUserBanned)
	assert.Contains(t, f.actionsBy(t, f.mod.ID), audit.ActionUserUnbanned)
	assert.Contains(t, f.actionsBy(t, f.alice.ID), audit.ActionAccountDisabled)
}

func TestMuteLockUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionMute, UserID: f.alice.ID, DurationHours: 2})
	require.NoError(t, err)
	assert.True(t, res.User.IsMuted)
	require.NotNil(t, res.User.MutedUntil)

	res, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionUnmute, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.False(t, res.User.IsMuted)

	res, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionLock, UserID: f.alice.ID})
	require.NoError(t, err)
	require.NotNil(t, res.User.AccountLockedUntil)
	assert.Equal(t, f.now.Add(DefaultLockDuration), *res.User.AccountLockedUntil)
	assert.True(t, res.User.IsActive)

	res, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionUnlock, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.Nil(t, res.User.AccountLockedUntil)

	_, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: "explode", UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	_, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionBan, UserID: uuid.New()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestDenialsAreAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.UserAction(ctx, f.alice.ID, UserActionRequest{Action: ActionBan, UserID: f.mod.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	_, err = f.svc.UserAction(ctx, f.mod.ID, UserActionRequest{Action: ActionBan, UserID: f.owner.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	_, err = f.svc.AuditLog(ctx, f.alice.ID, audit.Filter{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	assert.Equal(t, []string{audit.ActionAdminActionDenied, audit.ActionAdminActionDenied}, f.actionsBy(t, f.alice.ID))
	assert.Contains(t, f.actionsBy(t, f.mod.ID), audit.ActionAdminActionDenied)

	owner, err := f.users.GetByID(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, owner.IsActive)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := f.sessions.Issue(ctx, f.alice.ID, "1.1.1.1", "ua", time.Hour)
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, f.mod.ID, ResetPasswordRequest{UserID: f.alice.ID, NewPassword: "weak"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePasswordComplexity))

	require.NoError(t, f.svc.ResetPassword(ctx, f.mod.ID, ResetPasswordRequest{UserID: f.alice.ID, NewPassword: "N3w-Passw0rd!"}))
	alice, err := f.users.GetByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, credential.NewBcryptHasher(4).Verify("N3w-Passw0rd!", alice.PasswordHash))
	_, err = f.sessions.Validate(ctx, s.Token)
	assert.ErrorIs(t, err, sessions.ErrInvalidSession)

	err = f.svc.ResetPassword(ctx, f.mod.ID, ResetPasswordRequest{UserID: f.mod.ID, NewPassword: "N3w-Passw0rd!"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestManageRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.ManageRole(ctx, f.owner.ID, RoleRequest{Action: ActionGrantAdmin, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.True(t, f.svc.Check(ctx, &f.alice.ID).IsAdmin)

	_, err = f.svc.ManageRole(ctx, f.owner.ID, RoleRequest{Action: ActionGrantAdmin, UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))

	_, err = f.svc.ManageRole(ctx, f.mod.ID, RoleRequest{Action: ActionRevokeAdmin, UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	_, err = f.svc.ManageRole(ctx, f.owner.ID, RoleRequest{Action: ActionRevokeAdmin, UserID: f.alice.ID})
	require.NoError(t, err)
	assert.False(t, f.svc.Check(ctx, &f.alice.ID).IsAdmin)

	_, err = f.svc.ManageRole(ctx, f.owner.ID, RoleRequest{Action: ActionRevokeAdmin, UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	_, err = f.svc.ManageRole(ctx, f.owner.ID, RoleRequest{Action: ActionRevokeAdmin, UserID: f.owner.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	assert.Contains(t, f.actionsBy(t, f.owner.ID), audit.ActionGrantAdmin)
	assert.Contains(t, f.actionsBy(t, f.owner.ID), audit.ActionRevokeAdmin)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Equal(t, CheckResult{}, f.svc.Check(ctx, nil))
	res := f.svc.Check(ctx, &f.owner.ID)
	assert.True(t, res.Authenticated)
	assert.True(t, res.IsAdmin)
	assert.True(t, res.IsOwner)
	res = f.svc.Check(ctx, &f.alice.ID)
	assert.True(t, res.Authenticated)
	assert.False(t, res.IsAdmin)
}

func TestBanExclusions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// the owner seed is already protected
	list, err := f.svc.BanExclusions(ctx, f.mod.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, OwnerExclusionReason, list[0].Reason)

	require.NoError(t, f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "add", UserID: f.alice.ID}))
	err = f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "add", UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	err = f.svc.ManageBanExclusion(ctx, f.owner.ID, ExclusionRequest{Action: "add", UserID: f.mod.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput), "admins are not added")
	err = f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "add", UserID: f.mod.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput), "not self")
	err = f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "remove", UserID: f.owner.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	list, err = f.svc.BanExclusions(ctx, f.mod.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "remove", UserID: f.alice.ID}))
	err = f.svc.ManageBanExclusion(ctx, f.mod.ID, ExclusionRequest{Action: "remove", UserID: f.alice.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestManageDeviceBan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ban, err := f.svc.ManageDeviceBan(ctx, f.mod.ID, DeviceBanRequest{Action: "ban", Fingerprint: "fp-1", DurationHours: 1})
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.False(t, ban.IsPermanent)

	_, err = f.svc.ManageDeviceBan(ctx, f.mod.ID, DeviceBanRequest{Action: "ban"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	_, err = f.svc.ManageDeviceBan(ctx, f.alice.ID, DeviceBanRequest{Action: "ban", IPAddress: "9.9.9.9"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	bans, err := f.svc.DeviceBans(ctx, f.mod.ID)
	require.NoError(t, err)
	assert.Len(t, bans, 1)

	_, err = f.svc.ManageDeviceBan(ctx, f.mod.ID, DeviceBanRequest{Action: "lift", BanID: ban.ID})
	require.NoError(t, err)
	_, err = f.svc.ManageDeviceBan(ctx, f.mod.ID, DeviceBanRequest{Action: "lift", BanID: uuid.New()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	bans, err = f.svc.DeviceBans(ctx, f.mod.ID)
	require.NoError(t, err)
	assert.Empty(t, bans)
	assert.Contains(t, f.actionsBy(t, f.mod.ID), audit.ActionDeviceBanned)
	assert.Contains(t, f.actionsBy(t, f.mod.ID), audit.ActionDeviceBanLifted)
}
