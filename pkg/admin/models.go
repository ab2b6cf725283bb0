package admin

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultReason          = "No reason provided"
	DefaultExclusionReason = "Added to protection list"
	OwnerExclusionReason   = "Protected admin account"
	DefaultLockDuration    = 24 * time.Hour
)

// UserActionRequest is the body of the admin user action endpoint
type UserActionRequest struct {
	Action        Action    `json:"action"`
	UserID        uuid.UUID `json:"user_id"`
	Reason        string    `json:"reason"`
	DurationHours int       `json:"duration_hours,omitempty"`
}

// UserView is the admin-facing projection of an account
type UserView struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	IsActive            bool       `json:"is_active"`
	AccountLockedUntil  *time.Time `json:"account_locked_until,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	IsMuted             bool       `json:"is_muted"`
	MutedUntil          *time.Time `json:"muted_until,omitempty"`
	TwoFactorEnabled    bool       `json:"two_factor_enabled"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

// UserActionResult reports the account state after an action
type UserActionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Action  Action   `json:"action"`
	Reason  string   `json:"reason"`
	User    UserView `json:"user"`
}

// ResetPasswordRequest is the body of the admin password reset endpoint
type ResetPasswordRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	NewPassword string    `json:"new_password"`
}

// RoleRequest is the body of the admin role endpoint
type RoleRequest struct {
	Action Action    `json:"action"`
	UserID uuid.UUID `json:"user_id"`
}

// RoleResult reports a role change
type RoleResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Action   Action    `json:"action"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// ExclusionRequest is the body of the ban exclusion endpoint. Action is add or remove.
type ExclusionRequest struct {
	Action string    `json:"action"`
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// DeviceBanRequest is the body of the device ban endpoint. Action is ban or lift.
type DeviceBanRequest struct {
	Action        string    `json:"action"`
	BanID         uuid.UUID `json:"ban_id,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	DurationHours int       `json:"duration_hours,omitempty"`
	Reason        string    `json:"reason"`
}

// BanReportEntry is one row of the ban report
type BanReportEntry struct {
	UserView
	BanStatus string `json:"ban_status"`
}

// CheckResult answers whether the caller is an admin; it never fails for anonymous callers
type CheckResult struct {
	Authenticated bool       `json:"authenticated"`
	IsAdmin       bool       `json:"is_admin"`
	IsOwner       bool       `json:"is_owner"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
}
