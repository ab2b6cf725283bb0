package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/utils/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseRepository runs the shared contract against any Repository implementation
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	alice, err := repo.Create(ctx, CreateParams{Username: "alice", Email: "Alice@Example.com", PasswordHash: "hash-a"})
	require.NoError(t, err)
	assert.True(t, alice.IsActive)
	assert.Equal(t, 0, alice.FailedLoginAttempts)
	assert.NotEqual(t, uuid.Nil, alice.ID)

	t.Run("duplicate username", func(t *testing.T) {
		_, err := repo.Create(ctx, CreateParams{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("duplicate email ignores case", func(t *testing.T) {
		_, err := repo.Create(ctx, CreateParams{Username: "alice2", Email: "alice@example.COM", PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("username lookup is case sensitive", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "ALICE")
		assert.ErrorIs(t, err, ErrUserNotFound)

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, repo.Unlock(ctx, uuid.New()), ErrUserNotFound)
	})

	t.Run("failure counter", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			n, err := repo.IncrementFailedAttempts(ctx, alice.ID)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}

		until := time.Now().Add(30 * time.Minute)
		require.NoError(t, repo.SetLockedUntil(ctx, alice.ID, &until))
		got, _ := repo.GetByID(ctx, alice.ID)
		assert.True(t, got.IsLocked(time.Now()))
		assert.Equal(t, 3, got.FailedLoginAttempts)

		require.NoError(t, repo.Unlock(ctx, alice.ID))
		got, _ = repo.GetByID(ctx, alice.ID)
		assert.Nil(t, got.AccountLockedUntil)
		assert.Equal(t, 0, got.FailedLoginAttempts)
	})

	t.Run("record login resets counter", func(t *testing.T) {
		_, err := repo.IncrementFailedAttempts(ctx, alice.ID)
		require.NoError(t, err)
		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, repo.RecordLogin(ctx, alice.ID, now))

		got, _ := repo.GetByID(ctx, alice.ID)
		assert.Equal(t, 0, got.FailedLoginAttempts)
		require.NotNil(t, got.LastLogin)
		assert.WithinDuration(t, now, *got.LastLogin, time.Second)
	})

	t.Run("password update", func(t *testing.T) {
		_, err := repo.IncrementFailedAttempts(ctx, alice.ID)
		require.NoError(t, err)
		require.NoError(t, repo.UpdatePassword(ctx, alice.ID, "hash-b"))

		got, _ := repo.GetByID(ctx, alice.ID)
		assert.Equal(t, "hash-b", got.PasswordHash)
		assert.Equal(t, 0, got.FailedLoginAttempts)
		assert.NotNil(t, got.LastPasswordChange)
	})

	t.Run("two factor", func(t *testing.T) {
		require.NoError(t, repo.SetTwoFactor(ctx, alice.ID, true, "JBSWY3DPEHPK3PXP"))
		got, _ := repo.GetByID(ctx, alice.ID)
		assert.True(t, got.TwoFactorEnabled)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", got.TwoFactorSecret)

		require.NoError(t, repo.SetTwoFactor(ctx, alice.ID, false, ""))
		got, _ = repo.GetByID(ctx, alice.ID)
		assert.False(t, got.TwoFactorEnabled)
		assert.Empty(t, got.TwoFactorSecret)
	})

	t.Run("restricted listing", func(t *testing.T) {
		bob, err := repo.Create(ctx, CreateParams{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
		require.NoError(t, err)
		carol, err := repo.Create(ctx, CreateParams{Username: "carol", Email: "carol@example.com", PasswordHash: "x"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, CreateParams{Username: "dave", Email: "dave@example.com", PasswordHash: "x"})
		require.NoError(t, err)

		until := time.Now().Add(time.Hour)
		require.NoError(t, repo.SetActive(ctx, bob.ID, false, nil))
		require.NoError(t, repo.SetActive(ctx, carol.ID, false, &until))

		list, err := repo.ListRestricted(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, carol.ID, list[0].ID)
		assert.Equal(t, bob.ID, list[1].ID)
		assert.Equal(t, BanStatusTemporary, list[0].BanStatus(time.Now()))
		assert.Equal(t, BanStatusPermanent, list[1].BanStatus(time.Now()))
	})

	t.Run("mute", func(t *testing.T) {
		until := time.Now().Add(time.Hour)
		require.NoError(t, repo.SetMuted(ctx, alice.ID, true, &until))
		got, _ := repo.GetByID(ctx, alice.ID)
		assert.True(t, got.IsMutedAt(time.Now()))
		assert.False(t, got.IsMutedAt(until.Add(time.Minute)))
	})
}

func TestInMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewInMemoryRepository())
}

func TestPostgresRepository(t *testing.T) {
	pool, cleanup := pgtest.SetupTestDatabase(t)
	defer cleanup()

	exerciseRepository(t, NewPostgresRepository(pool))
}

func TestInMemoryIncrementIsAtomic(t *testing.T) {
	repo := NewInMemoryRepository()
	u, err := repo.Create(context.Background(), CreateParams{Username: "racer", Email: "r@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.IncrementFailedAttempts(context.Background(), u.ID)
		}()
	}
	wg.Wait()

	got, _ := repo.GetByID(context.Background(), u.ID)
	assert.Equal(t, 50, got.FailedLoginAttempts)
}

func TestBanStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		user User
		want string
	}{
		{"active", User{IsActive: true}, BanStatusNone},
		{"permanent", User{IsActive: false}, BanStatusPermanent},
		{"temporary", User{IsActive: false, AccountLockedUntil: &future}, BanStatusTemporary},
		{"expired", User{IsActive: false, AccountLockedUntil: &past}, BanStatusExpired},
		{"locked", User{IsActive: true, AccountLockedUntil: &future}, BanStatusTemporaryLocked},
		{"stale lock", User{IsActive: true, AccountLockedUntil: &past}, BanStatusNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.BanStatus(now))
		})
	}

	assert.True(t, User{IsActive: false, AccountLockedUntil: &past}.DisabledPermanently(now))
	assert.False(t, User{IsActive: false, AccountLockedUntil: &future}.DisabledPermanently(now))
}
