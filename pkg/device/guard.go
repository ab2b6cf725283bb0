package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNoBanTarget is returned when a ban names neither a fingerprint nor an IP
var ErrNoBanTarget = errors.New("device ban needs a fingerprint or an IP address")

// BanParams describes a new device ban. A zero Duration makes it permanent.
type BanParams struct {
	Fingerprint string
	IPAddress   string
	Reason      string
	Duration    time.Duration
	BannedBy    *uuid.UUID
}

// Guard answers whether a device may authenticate, honouring the exclusion allow-list
type Guard struct {
	bans       BanRepository
	exclusions ExclusionRepository
	now        func() time.Time
}

// NewGuard creates a device ban guard
func NewGuard(bans BanRepository, exclusions ExclusionRepository) *Guard {
	return &Guard{bans: bans, exclusions: exclusions, now: time.Now}
}

// WithClock replaces time.Now, for tests
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// IsBanned returns the ban in force for fingerprint or ip, or nil
func (g *Guard) IsBanned(ctx context.Context, fingerprint, ip string) (*Ban, error) {
	ban, err := g.bans.FindActive(ctx, fingerprint, ip, g.now())
	if err != nil {
		return nil, fmt.Errorf("failed to check device ban: %w", err)
	}
	return ban, nil
}

// IsExcluded reports whether userID is on the protected allow-list
func (g *Guard) IsExcluded(ctx context.Context, userID uuid.UUID) (bool, error) {
	return g.exclusions.IsExcluded(ctx, userID)
}

// Check returns the ban blocking this request, or nil when the request may proceed.
// candidate is the account resolved from the submitted username, if any; an excluded
// candidate bypasses the ban entirely.
func (g *Guard) Check(ctx context.Context, fingerprint, ip string, candidate *uuid.UUID) (*Ban, error) {
	ban, err := g.IsBanned(ctx, fingerprint, ip)
	if err != nil || ban == nil {
		return nil, err
	}
	if candidate != nil {
		excluded, err := g.exclusions.IsExcluded(ctx, *candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to check ban exclusion: %w", err)
		}
		if excluded {
			slog.Info("Device ban bypassed for excluded account", "user_id", *candidate, "ban_id", ban.ID)
			return nil, nil
		}
	}
	return ban, nil
}

// BanDevice records a new ban
func (g *Guard) BanDevice(ctx context.Context, params BanParams) (Ban, error) {
	if params.Fingerprint == "" && params.IPAddress == "" {
		return Ban{}, ErrNoBanTarget
	}
	now := g.now().UTC()
	ban := Ban{
		Fingerprint: params.Fingerprint,
		IPAddress:   params.IPAddress,
		Reason:      params.Reason,
		IsPermanent: params.Duration <= 0,
		BannedBy:    params.BannedBy,
		CreatedAt:   now,
	}
	if !ban.IsPermanent {
		until := now.Add(params.Duration)
		ban.BannedUntil = &until
	}
	return g.bans.Create(ctx, ban)
}

// LiftBan ends a ban
func (g *Guard) LiftBan(ctx context.Context, id uuid.UUID) error {
	return g.bans.Lift(ctx, id, g.now())
}

// ActiveBans lists bans currently in force
func (g *Guard) ActiveBans(ctx context.Context) ([]Ban, error) {
	return g.bans.ListActive(ctx, g.now())
}

// AddExclusion puts userID on the allow-list
func (g *Guard) AddExclusion(ctx context.Context, userID uuid.UUID, reason string, addedBy *uuid.UUID) error {
	return g.exclusions.Add(ctx, Exclusion{
		UserID:    userID,
		Reason:    reason,
		AddedBy:   addedBy,
		CreatedAt: g.now().UTC(),
	})
}

// RemoveExclusion takes userID off the allow-list
func (g *Guard) RemoveExclusion(ctx context.Context, userID uuid.UUID) error {
	return g.exclusions.Remove(ctx, userID)
}

// Exclusions lists the allow-list
func (g *Guard) Exclusions(ctx context.Context) ([]Exclusion, error) {
	return g.exclusions.List(ctx)
}
