package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/user"
)

// OwnerPasswordBytes is the entropy of a generated owner password (32 hex characters)
const OwnerPasswordBytes = 16

// UserStore resolves or creates the configured owner account
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Create(ctx context.Context, params user.CreateParams) (user.User, error)
}

// PasswordHasher hashes the generated owner password
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// OwnerSeeder promotes an account to protected owner
type OwnerSeeder interface {
	SeedOwner(ctx context.Context, userID uuid.UUID) error
}

// OwnerSeedConfig contains configuration for seeding the owner admin
type OwnerSeedConfig struct {
	// Owner username (from OWNER_USERNAME env var); empty disables the seed
	Username string
	// Owner email (from OWNER_EMAIL env var); with a Hasher set, a missing owner account is created
	Email string

	Users  UserStore
	Admin  OwnerSeeder
	Hasher PasswordHasher
}

// OwnerSeedResult contains the result of the owner seed
type OwnerSeedResult struct {
	UserID   uuid.UUID
	Username string
	Seeded   bool   // false when no owner is configured or the account does not exist yet
	Created  bool   // the account was created by this seed
	Password string // generated password, only set when Created
}

// SeedOwner ensures the configured owner account is a protected admin that device bans
// never apply to. Registration refuses the owner name, so a missing account is created here
// when an email and hasher are configured; otherwise the seed is skipped until the next start.
// Once an owner is seeded, a different account is never promoted in its place.
func SeedOwner(ctx context.Context, cfg OwnerSeedConfig) (*OwnerSeedResult, error) {
	if cfg.Username == "" {
		slog.Info("No owner configured - skipping owner seed")
		return &OwnerSeedResult{}, nil
	}
	if cfg.Users == nil || cfg.Admin == nil {
		return nil, fmt.Errorf("invalid owner seed configuration: Users and Admin are required")
	}

	result := &OwnerSeedResult{Username: cfg.Username}
	u, err := cfg.Users.GetByUsername(ctx, cfg.Username)
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		if cfg.Email == "" || cfg.Hasher == nil {
			slog.Warn("Owner account does not exist yet - skipping owner seed", "username", cfg.Username)
			return result, nil
		}
		u, err = createOwner(ctx, cfg, result)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}

	if err := cfg.Admin.SeedOwner(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("failed to seed owner: %w", err)
	}

	slog.Info("Owner seed completed", "username", u.Username, "user_id", u.ID, "created", result.Created)
	result.UserID = u.ID
	result.Username = u.Username
	result.Seeded = true
	return result, nil
}

func createOwner(ctx context.Context, cfg OwnerSeedConfig, result *OwnerSeedResult) (user.User, error) {
	password, err := credential.GenerateToken(OwnerPasswordBytes)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to generate owner password: %w", err)
	}
	hash, err := cfg.Hasher.Hash(password)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to hash owner password: %w", err)
	}
	u, err := cfg.Users.Create(ctx, user.CreateParams{Username: cfg.Username, Email: cfg.Email, PasswordHash: hash})
	if err != nil {
		return user.User{}, fmt.Errorf("failed to create owner account: %w", err)
	}
	result.Created = true
	result.Password = password
	return u, nil
}
