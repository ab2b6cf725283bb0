package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/lockout"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
)

// Service implements the moderation surface. Every mutation is authorized first and
// every outcome, including denials, is written to the audit log.
type Service struct {
	authz    *Authorizer
	admins   Repository
	users    user.Repository
	lockout  *lockout.Guard
	sessions *sessions.Manager
	devices  *device.Guard
	hasher   credential.PasswordHasher
	policy   credential.PasswordPolicy
	audit    *audit.Logger
	lockFor  time.Duration
	now      func() time.Time
}

// ServiceParams wires a Service
type ServiceParams struct {
	Admins       Repository
	Users        user.Repository
	Lockout      *lockout.Guard
	Sessions     *sessions.Manager
	Devices      *device.Guard
	Hasher       credential.PasswordHasher
	Audit        *audit.Logger
	LockDuration time.Duration
}

func NewService(p ServiceParams) *Service {
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return &Service{
		authz:    NewAuthorizer(p.Admins),
		admins:   p.Admins,
		users:    p.Users,
		lockout:  p.Lockout,
		sessions: p.Sessions,
		devices:  p.Devices,
		hasher:   p.Hasher,
		policy:   credential.DefaultPasswordPolicy(),
		audit:    p.Audit,
		lockFor:  p.LockDuration,
		now:      time.Now,
	}
}

// WithClock replaces time.Now, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authorizer exposes the role checks for middleware
func (s *Service) Authorizer() *Authorizer {
	return s.authz
}

func (s *Service) deny(ctx context.Context, actorID uuid.UUID, what string, err error) error {
	slog.Warn("Admin action denied", "actor", actorID, "action", what, "err", err)
	s.audit.LogUser(ctx, actorID, audit.ActionAdminActionDenied, fmt.Sprintf("Denied %s: %s", what, denialMessage(err)))
	return err
}

func denialMessage(err error) string {
	var e *apperrors.Error
	if apperrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func (s *Service) requireAdmin(ctx context.Context, actorID uuid.UUID, what string) error {
	ok, err := s.authz.IsAdmin(ctx, actorID)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to check admin role")
	}
	if !ok {
		return s.deny(ctx, actorID, what, apperrors.Forbidden("Admin access required"))
	}
	return nil
}

// authorizeOn checks the actor and loads the target account
func (s *Service) authorizeOn(ctx context.Context, actorID, targetID uuid.UUID, action Action) (user.User, error) {
	if err := s.authz.AssertCanActOn(ctx, actorID, targetID, action); err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeInternal {
			return user.User{}, err
		}
		return user.User{}, s.deny(ctx, actorID, string(action), err)
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return user.User{}, apperrors.NotFound("user", targetID.String())
		}
		return user.User{}, apperrors.InternalWrap(err, "failed to load user")
	}
	return target, nil
}

func toView(u user.User) UserView {
	var v UserView
	if err := copier.Copy(&v, &u); err != nil {
		slog.Error("Failed to map user view", "user_id", u.ID, "err", err)
	}
	return v
}

func hours(h int) time.Duration {
	return time.Duration(h) * time.Hour
}

// UserAction applies a moderation action to one account
func (s *Service) UserAction(ctx context.Context, actorID uuid.UUID, req UserActionRequest) (UserActionResult, error) {
	if req.UserID == uuid.Nil {
		return UserActionResult{}, apperrors.InvalidInput("user_id", "is required")
	}
	if req.DurationHours < 0 {
		return UserActionResult{}, apperrors.InvalidInput("duration_hours", "must not be negative")
	}
	reason := req.Reason
	if reason == "" {
		reason = DefaultReason
	}

	var apply func(user.User) (string, error)
	switch req.Action {
	case ActionBan:
		apply = func(target user.User) (string, error) { return s.ban(ctx, actorID, target, reason, req.DurationHours) }
	case ActionDisable:
		apply = func(target user.User) (string, error) { return s.ban(ctx, actorID, target, reason, 0) }
	case ActionUnban, ActionEnable:
		apply = func(target user.User) (string, error) { return s.unban(ctx, actorID, target, req.Action) }
	case ActionMute:
		apply = func(target user.User) (string, error) { return s.mute(ctx, actorID, target, reason, req.DurationHours) }
	case ActionUnmute:
		apply = func(target user.User) (string, error) {
			if err := s.users.SetMuted(ctx, target.ID, false, nil); err != nil {
				return "", err
			}
			s.audit.LogUser(ctx, actorID, audit.ActionUserUnmuted, fmt.Sprintf("Unmuted %s", target.Username))
			return "User unmuted successfully", nil
		}
	case ActionLock:
		apply = func(target user.User) (string, error) {
			d := s.lockFor
			if req.DurationHours > 0 {
				d = hours(req.DurationHours)
			}
			until, err := s.lockout.Lock(ctx, target.ID, d)
			if err != nil {
				return "", err
			}
			s.audit.LogUser(ctx, actorID, audit.ActionUserLocked, fmt.Sprintf("Locked %s until %s: %s", target.Username, until.Format(time.RFC3339), reason))
			return "User locked successfully", nil
		}
	case ActionUnlock:
		apply = func(target user.User) (string, error) {
			if err := s.lockout.Unlock(ctx, target.ID); err != nil {
				return "", err
			}
			s.audit.LogUser(ctx, actorID, audit.ActionUserUnlocked, fmt.Sprintf("Unlocked %s", target.Username))
			return "User unlocked successfully", nil
		}
	default:
		return UserActionResult{}, apperrors.InvalidInput("action", fmt.Sprintf("unsupported action %q", req.Action))
	}

	target, err := s.authorizeOn(ctx, actorID, req.UserID, req.Action)
	if err != nil {
		return UserActionResult{}, err
	}
	message, err := apply(target)
	if err != nil {
		return UserActionResult{}, apperrors.InternalWrap(err, "failed to perform action")
	}

	updated, err := s.users.GetByID(ctx, target.ID)
	if err != nil {
		return UserActionResult{}, apperrors.InternalWrap(err, "failed to reload user")
	}
	slog.Info("Admin user action", "actor", actorID, "action", req.Action, "target", target.ID)
	return UserActionResult{
		Success: true,
		Message: message,
		Action:  req.Action,
		Reason:  reason,
		User:    toView(updated),
	}, nil
}

func (s *Service) ban(ctx context.Context, actorID uuid.UUID, target user.User, reason string, durationHours int) (string, error) {
	var until *time.Time
	if durationHours > 0 {
		t := s.now().UTC().Add(hours(durationHours))
		until = &t
	}
	if err := s.users.SetActive(ctx, target.ID, false, until); err != nil {
		return "", err
	}
	if _, err := s.sessions.RevokeAll(ctx, target.ID); err != nil {
		return "", err
	}

	if until != nil {
		s.audit.LogUser(ctx, actorID, audit.ActionUserBanned, fmt.Sprintf("Banned %s until %s: %s", target.Username, until.Format(time.RFC3339), reason))
		s.audit.LogUser(ctx, target.ID, audit.ActionAccountDisabled, fmt.Sprintf("Account temporarily restricted until %s", until.Format(time.RFC3339)))
		return "User temporarily banned", nil
	}
	s.audit.LogUser(ctx, actorID, audit.ActionUserBanned, fmt.Sprintf("Banned %s permanently: %s", target.Username, reason))
	s.audit.LogUser(ctx, target.ID, audit.ActionAccountDisabled, "Account permanently restricted")
	return "User banned successfully", nil
}

func (s *Service) unban(ctx context.Context, actorID uuid.UUID, target user.User, action Action) (string, error) {
	if err := s.users.SetActive(ctx, target.ID, true, nil); err != nil {
		return "", err
	}
	if err := s.lockout.Unlock(ctx, target.ID); err != nil {
		return "", err
	}
	if action == ActionEnable {
		s.audit.LogUser(ctx, actorID, audit.ActionUserEnabled, fmt.Sprintf("Enabled %s", target.Username))
		return "User enabled successfully", nil
	}
	s.audit.LogUser(ctx, actorID, audit.ActionUserUnbanned, fmt.Sprintf("Unbanned %s", target.Username))
	return "User unbanned successfully", nil
}

func (s *Service) mute(ctx context.Context, actorID uuid.UUID, target user.User, reason string, durationHours int) (string, error) {
	var until *time.Time
	if durationHours > 0 {
		t := s.now().UTC().Add(hours(durationHours))
		until = &t
	}
	if err := s.users.SetMuted(ctx, target.ID, true, until); err != nil {
		return "", err
	}
	s.audit.LogUser(ctx, actorID, audit.ActionUserMuted, fmt.Sprintf("Muted %s: %s", target.Username, reason))
	return "User muted successfully", nil
}

// ResetPassword sets a new password for another account and signs it out everywhere
func (s *Service) ResetPassword(ctx context.Context, actorID uuid.UUID, req ResetPasswordRequest) error {
	if req.UserID == uuid.Nil {
		return apperrors.InvalidInput("user_id", "is required")
	}
	if problems := s.policy.Check(req.NewPassword); len(problems) > 0 {
		return apperrors.New(apperrors.ErrCodePasswordComplexity, "Password does not meet requirements").WithDetail("problems", problems)
	}

	target, err := s.authorizeOn(ctx, actorID, req.UserID, ActionResetPassword)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, target.ID, hash); err != nil {
		return apperrors.InternalWrap(err, "failed to update password")
	}
	if _, err := s.sessions.RevokeAll(ctx, target.ID); err != nil {
		return apperrors.InternalWrap(err, "failed to revoke sessions")
	}
	s.audit.LogUser(ctx, actorID, audit.ActionAdminResetPassword, fmt.Sprintf("Reset password for %s", target.Username))
	return nil
}

// ManageRole grants or revokes the admin role
func (s *Service) ManageRole(ctx context.Context, actorID uuid.UUID, req RoleRequest) (RoleResult, error) {
	if req.Action != ActionGrantAdmin && req.Action != ActionRevokeAdmin {
		return RoleResult{}, apperrors.InvalidInput("action", "must be grant or revoke")
	}
	if req.UserID == uuid.Nil {
		return RoleResult{}, apperrors.InvalidInput("user_id", "is required")
	}

	target, err := s.authorizeOn(ctx, actorID, req.UserID, req.Action)
	if err != nil {
		return RoleResult{}, err
	}

	result := RoleResult{Success: true, Action: req.Action, UserID: target.ID, Username: target.Username}
	if req.Action == ActionGrantAdmin {
		err := s.admins.Grant(ctx, Admin{UserID: target.ID, GrantedBy: &actorID, GrantedAt: s.now().UTC()})
		if errors.Is(err, ErrAlreadyAdmin) {
			return RoleResult{}, apperrors.Conflict("User is already an admin")
		}
		if err != nil {
			return RoleResult{}, apperrors.InternalWrap(err, "failed to grant admin")
		}
		s.audit.LogUser(ctx, actorID, audit.ActionGrantAdmin, fmt.Sprintf("Granted admin role to %s", target.Username))
		result.Message = "Admin privileges granted"
		return result, nil
	}

	err = s.admins.Revoke(ctx, target.ID)
	switch {
	case errors.Is(err, ErrNotAdmin):
		return RoleResult{}, apperrors.InvalidInput("user_id", "user is not an admin")
	case errors.Is(err, ErrProtectedAdmin):
		return RoleResult{}, s.deny(ctx, actorID, string(req.Action), apperrors.Forbidden("The owner account cannot be revoked"))
	case err != nil:
		return RoleResult{}, apperrors.InternalWrap(err, "failed to revoke admin")
	}
	s.audit.LogUser(ctx, actorID, audit.ActionRevokeAdmin, fmt.Sprintf("Revoked admin role from %s", target.Username))
	result.Message = "Admin privileges revoked"
	return result, nil
}

// ManageBanExclusion adds or removes an account from the device-ban allow-list
func (s *Service) ManageBanExclusion(ctx context.Context, actorID uuid.UUID, req ExclusionRequest) error {
	if req.UserID == uuid.Nil {
		return apperrors.InvalidInput("user_id", "is required")
	}

	switch req.Action {
	case "add":
		target, err := s.authorizeOn(ctx, actorID, req.UserID, ActionAddExclusion)
		if err != nil {
			return err
		}
		isAdmin, err := s.authz.IsAdmin(ctx, target.ID)
		if err != nil {
			return apperrors.InternalWrap(err, "failed to check admin role")
		}
		if isAdmin {
			return apperrors.InvalidInput("user_id", "admins cannot be added to the protection list")
		}
		reason := req.Reason
		if reason == "" {
			reason = DefaultExclusionReason
		}
		err = s.devices.AddExclusion(ctx, target.ID, reason, &actorID)
		if errors.Is(err, device.ErrAlreadyExcluded) {
			return apperrors.Conflict("User is already on the protection list")
		}
		if err != nil {
			return apperrors.InternalWrap(err, "failed to add ban exclusion")
		}
		s.audit.LogUser(ctx, actorID, audit.ActionBanExclusionAdded, fmt.Sprintf("Added %s to ban exclusions: %s", target.Username, reason))
		return nil

	case "remove":
		target, err := s.authorizeOn(ctx, actorID, req.UserID, ActionRemoveExclusion)
		if err != nil {
			return err
		}
		err = s.devices.RemoveExclusion(ctx, target.ID)
		if errors.Is(err, device.ErrExclusionNotFound) {
			return apperrors.NotFound("ban exclusion", target.ID.String())
		}
		if err != nil {
			return apperrors.InternalWrap(err, "failed to remove ban exclusion")
		}
		s.audit.LogUser(ctx, actorID, audit.ActionBanExclusionRemoved, fmt.Sprintf("Removed %s from ban exclusions", target.Username))
		return nil
	}
	return apperrors.InvalidInput("action", "must be add or remove")
}

// BanExclusions lists the allow-list
func (s *Service) BanExclusions(ctx context.Context, actorID uuid.UUID) ([]device.Exclusion, error) {
	if err := s.requireAdmin(ctx, actorID, "list ban exclusions"); err != nil {
		return nil, err
	}
	list, err := s.devices.Exclusions(ctx)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to list ban exclusions")
	}
	return list, nil
}

// ManageDeviceBan bans a fingerprint or IP, or lifts an existing ban
func (s *Service) ManageDeviceBan(ctx context.Context, actorID uuid.UUID, req DeviceBanRequest) (*device.Ban, error) {
	if err := s.requireAdmin(ctx, actorID, "device ban"); err != nil {
		return nil, err
	}

	switch req.Action {
	case "ban":
		if req.DurationHours < 0 {
			return nil, apperrors.InvalidInput("duration_hours", "must not be negative")
		}
		reason := req.Reason
		if reason == "" {
			reason = DefaultReason
		}
		ban, err := s.devices.BanDevice(ctx, device.BanParams{
			Fingerprint: req.Fingerprint,
			IPAddress:   req.IPAddress,
			Reason:      reason,
			Duration:    hours(req.DurationHours),
			BannedBy:    &actorID,
		})
		if errors.Is(err, device.ErrNoBanTarget) {
			return nil, apperrors.InvalidInput("fingerprint", "a fingerprint or ip_address is required")
		}
		if err != nil {
			return nil, apperrors.InternalWrap(err, "failed to ban device")
		}
		s.audit.LogUser(ctx, actorID, audit.ActionDeviceBanned, fmt.Sprintf("Banned device %s: %s", ban.ID, reason))
		return &ban, nil

	case "lift":
		if req.BanID == uuid.Nil {
			return nil, apperrors.InvalidInput("ban_id", "is required")
		}
		err := s.devices.LiftBan(ctx, req.BanID)
		if errors.Is(err, device.ErrBanNotFound) {
			return nil, apperrors.NotFound("device ban", req.BanID.String())
		}
		if err != nil {
			return nil, apperrors.InternalWrap(err, "failed to lift device ban")
		}
		s.audit.LogUser(ctx, actorID, audit.ActionDeviceBanLifted, fmt.Sprintf("Lifted device ban %s", req.BanID))
		return nil, nil
	}
	return nil, apperrors.InvalidInput("action", "must be ban or lift")
}

// DeviceBans lists bans in force
func (s *Service) DeviceBans(ctx context.Context, actorID uuid.UUID) ([]device.Ban, error) {
	if err := s.requireAdmin(ctx, actorID, "list device bans"); err != nil {
		return nil, err
	}
	bans, err := s.devices.ActiveBans(ctx)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to list device bans")
	}
	return bans, nil
}

// BanReport lists disabled and locked accounts with their derived status
func (s *Service) BanReport(ctx context.Context, actorID uuid.UUID) ([]BanReportEntry, error) {
	if err := s.requireAdmin(ctx, actorID, "ban report"); err != nil {
		return nil, err
	}
	restricted, err := s.users.ListRestricted(ctx)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to list restricted users")
	}

	now := s.now()
	out := make([]BanReportEntry, 0, len(restricted))
	for _, u := range restricted {
		status := u.BanStatus(now)
		if status == user.BanStatusNone {
			continue
		}
		out = append(out, BanReportEntry{UserView: toView(u), BanStatus: status})
	}
	return out, nil
}

// AuditLog returns audit entries matching filter, newest first
func (s *Service) AuditLog(ctx context.Context, actorID uuid.UUID, filter audit.Filter) ([]audit.Entry, error) {
	if err := s.requireAdmin(ctx, actorID, "audit log"); err != nil {
		return nil, err
	}
	entries, err := s.audit.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to query audit log")
	}
	return entries, nil
}

// Check reports the caller's admin status; userID is nil for anonymous callers
func (s *Service) Check(ctx context.Context, userID *uuid.UUID) CheckResult {
	if userID == nil {
		return CheckResult{}
	}
	result := CheckResult{Authenticated: true, UserID: userID}
	admin, err := s.admins.Get(ctx, *userID)
	if err != nil {
		if !errors.Is(err, ErrNotAdmin) {
			slog.Error("Failed to check admin role", "user_id", *userID, "err", err)
		}
		return result
	}
	result.IsAdmin = true
	result.IsOwner = admin.IsProtected
	return result
}

// SeedOwner makes userID the protected owner admin and puts it on the ban exclusion list
func (s *Service) SeedOwner(ctx context.Context, userID uuid.UUID) error {
	if err := s.admins.EnsureProtected(ctx, userID, s.now().UTC()); err != nil {
		return err
	}
	err := s.devices.AddExclusion(ctx, userID, OwnerExclusionReason, nil)
	if err != nil && !errors.Is(err, device.ErrAlreadyExcluded) {
		return fmt.Errorf("failed to exclude owner from bans: %w", err)
	}
	return nil
}
