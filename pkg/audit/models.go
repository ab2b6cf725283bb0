package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action tags recorded in the audit log
const (
	ActionLogin          = "LOGIN"
	ActionLoginError     = "LOGIN_ERROR"
	ActionAccountLocked  = "ACCOUNT_LOCKED"
	ActionLogout         = "LOGOUT"
	ActionTerminate      = "TERMINATE_SESSION"
	ActionRegister       = "REGISTER"
	ActionSessionRefresh = "SESSION_REFRESH"

	Action2FAEnabled        = "2FA_ENABLED"
	Action2FADisabled       = "2FA_DISABLED"
	Action2FAVerified       = "2FA_VERIFIED"
	Action2FAVerifiedBackup = "2FA_VERIFIED_BACKUP"
	Action2FAFailed         = "2FA_FAILED"

	ActionPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	ActionPasswordReset          = "PASSWORD_RESET"
	ActionAdminResetPassword     = "ADMIN_RESET_PASSWORD"

	ActionUserBanned      = "USER_BANNED"
	ActionUserUnbanned    = "USER_UNBANNED"
	ActionUserMuted       = "USER_MUTED"
	ActionUserUnmuted     = "USER_UNMUTED"
	ActionUserDisabled    = "USER_DISABLED"
	ActionUserEnabled     = "USER_ENABLED"
	ActionUserLocked      = "USER_LOCKED"
	ActionUserUnlocked    = "USER_UNLOCKED"
	ActionAccountDisabled = "ACCOUNT_DISABLED"

	ActionGrantAdmin          = "GRANT_ADMIN"
	ActionRevokeAdmin         = "REVOKE_ADMIN"
	ActionBanExclusionAdded   = "BAN_EXCLUSION_ADDED"
	ActionBanExclusionRemoved = "BAN_EXCLUSION_REMOVED"
	ActionDeviceBanned        = "DEVICE_BANNED"
	ActionDeviceBanLifted     = "DEVICE_BAN_LIFTED"
	ActionAdminActionDenied   = "ADMIN_ACTION_DENIED"
)

// Query limits for the admin report
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Entry is one immutable audit row. UserID is nil for actions recorded before identity is known.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	Action      string     `json:"action"`
	Description string     `json:"description"`
	IPAddress   string     `json:"ip_address"`
	UserAgent   string     `json:"user_agent"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Filter is the fixed set of optional clauses accepted by the audit report
type Filter struct {
	UserID *uuid.UUID
	Action string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// Normalize clamps limit into 1..MaxLimit (DefaultLimit when unset) and offset to >= 0.
func (f Filter) Normalize() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e passes every clause set on f.
func (f Filter) Matches(e Entry) bool {
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}
