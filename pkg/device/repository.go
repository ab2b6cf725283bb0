package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBanNotFound       = errors.New("device ban not found")
	ErrExclusionNotFound = errors.New("ban exclusion not found")
	ErrAlreadyExcluded   = errors.New("user is already on the ban exclusion list")
)

// Ban blocks login and registration from a fingerprint and/or an IP address
type Ban struct {
	ID          uuid.UUID  `json:"id"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	Reason      string     `json:"reason"`
	IsPermanent bool       `json:"is_permanent"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	BannedBy    *uuid.UUID `json:"banned_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LiftedAt    *time.Time `json:"lifted_at,omitempty"`
}

// ActiveAt reports whether the ban is in force at now
func (b Ban) ActiveAt(now time.Time) bool {
	if b.LiftedAt != nil {
		return false
	}
	if b.IsPermanent {
		return true
	}
	return b.BannedUntil != nil && b.BannedUntil.After(now)
}

// Matches reports whether the ban targets fingerprint or ip
func (b Ban) Matches(fingerprint, ip string) bool {
	return (b.Fingerprint != "" && b.Fingerprint == fingerprint) ||
		(b.IPAddress != "" && b.IPAddress == ip)
}

// Exclusion is a protected account that device bans never apply to
type Exclusion struct {
	UserID    uuid.UUID  `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	Reason    string     `json:"reason"`
	AddedBy   *uuid.UUID `json:"added_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// BanRepository stores device bans. Bans are lifted, never deleted.
type BanRepository interface {
	Create(ctx context.Context, ban Ban) (Ban, error)
	// FindActive returns the newest ban in force at now matching either signal, or nil.
	FindActive(ctx context.Context, fingerprint, ip string, now time.Time) (*Ban, error)
	Lift(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActive(ctx context.Context, now time.Time) ([]Ban, error)
}

// ExclusionRepository stores the ban exclusion allow-list
type ExclusionRepository interface {
	Add(ctx context.Context, exclusion Exclusion) error
	Remove(ctx context.Context, userID uuid.UUID) error
	IsExcluded(ctx context.Context, userID uuid.UUID) (bool, error)
	// List returns exclusions newest first with usernames joined in.
	List(ctx context.Context) ([]Exclusion, error)
}
