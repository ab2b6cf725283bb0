package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already registered")
)

// User is the account record consulted by every security check.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	IsActive            bool       `json:"is_active"`
	AccountLockedUntil  *time.Time `json:"account_locked_until,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	TwoFactorEnabled    bool       `json:"two_factor_enabled"`
	TwoFactorSecret     string     `json:"-"`
	IsMuted             bool       `json:"is_muted"`
	MutedUntil          *time.Time `json:"muted_until,omitempty"`
	IsEmailVerified     bool       `json:"is_email_verified"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	LastPasswordChange  *time.Time `json:"last_password_change,omitempty"`
}

// CreateParams carries the fields needed to register an account
type CreateParams struct {
	Username     string
	Email        string
	PasswordHash string
}

// IsLocked reports whether the account lock is still running at now.
func (u User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}

// DisabledPermanently reports whether a disabled account has no running expiry.
// A disabled account whose lock already elapsed still counts as permanent.
func (u User) DisabledPermanently(now time.Time) bool {
	return !u.IsActive && !u.IsLocked(now)
}

// IsMutedAt reports whether chat restrictions apply at now.
func (u User) IsMutedAt(now time.Time) bool {
	if !u.IsMuted {
		return false
	}
	return u.MutedUntil == nil || u.MutedUntil.After(now)
}

// Ban status labels used by the admin ban report
const (
	BanStatusPermanent       = "Permanently Banned"
	BanStatusTemporary       = "Temporarily Banned"
	BanStatusExpired         = "Ban Expired"
	BanStatusTemporaryLocked = "Temporarily Locked"
	BanStatusNone            = "None"
)

// BanStatus derives the ban report label for the account at now.
func (u User) BanStatus(now time.Time) string {
	switch {
	case !u.IsActive && u.AccountLockedUntil == nil:
		return BanStatusPermanent
	case !u.IsActive && u.AccountLockedUntil.After(now):
		return BanStatusTemporary
	case !u.IsActive:
		return BanStatusExpired
	case u.IsLocked(now):
		return BanStatusTemporaryLocked
	default:
		return BanStatusNone
	}
}
