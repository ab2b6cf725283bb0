package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mytad/game-auth/pkg/user"
	"github.com/mytad/game-auth/pkg/utils/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepository struct{}

func (failingRepository) Append(ctx context.Context, entry Entry) error {
	return errors.New("disk full")
}

func (failingRepository) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return nil, errors.New("disk full")
}

func TestFilterNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        Filter
		wantLimit int
		wantOff   int
	}{
		{"default", Filter{}, DefaultLimit, 0},
		{"negative", Filter{Limit: -5, Offset: -1}, DefaultLimit, 0},
		{"clamped", Filter{Limit: 5000, Offset: 10}, MaxLimit, 10},
		{"kept", Filter{Limit: 1}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOff, got.Offset)
		})
	}
}

func seedAndQuery(t *testing.T, repo Repository, users user.Repository) {
	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "1.2.3.4", UserAgent: "test-agent"})

	alice, err := users.Create(ctx, user.CreateParams{Username: "alice", Email: "alice@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	logger := NewLogger(repo).WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})

	logger.Log(ctx, nil, ActionLoginError, "User not found")
	for i := 0; i < 5; i++ {
		logger.LogUser(ctx, alice.ID, ActionLogin, "Login failed: Invalid password")
	}
	logger.LogUser(ctx, alice.ID, ActionAccountLocked, "Account locked after 5 failed attempts")

	t.Run("newest first with username", func(t *testing.T) {
		entries, err := logger.Query(ctx, Filter{UserID: &alice.ID})
		require.NoError(t, err)
		require.Len(t, entries, 6)
		assert.Equal(t, ActionAccountLocked, entries[0].Action)
		assert.Equal(t, "alice", entries[0].Username)
		assert.Equal(t, "1.2.3.4", entries[0].IPAddress)
		assert.Equal(t, "test-agent", entries[0].UserAgent)
	})

	t.Run("action filter", func(t *testing.T) {
		entries, err := logger.Query(ctx, Filter{Action: ActionLogin})
		require.NoError(t, err)
		assert.Len(t, entries, 5)
	})

	t.Run("anonymous entry", func(t *testing.T) {
		entries, err := logger.Query(ctx, Filter{Action: ActionLoginError})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].UserID)
		assert.Empty(t, entries[0].Username)
	})

	t.Run("time range", func(t *testing.T) {
		since := base.Add(2 * time.Second)
		until := base.Add(4 * time.Second)
		entries, err := logger.Query(ctx, Filter{Since: &since, Until: &until})
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("paging", func(t *testing.T) {
		entries, err := logger.Query(ctx, Filter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, ActionLogin, entries[0].Action)

		entries, err = logger.Query(ctx, Filter{Offset: 50})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestInMemoryRepository(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedAndQuery(t, NewInMemoryRepository(users), users)
}

func TestPostgresRepository(t *testing.T) {
	pool, cleanup := pgtest.SetupTestDatabase(t)
	defer cleanup()

	seedAndQuery(t, NewPostgresRepository(pool), user.NewPostgresRepository(pool))
}

func TestLoggerSwallowsWriteErrors(t *testing.T) {
	logger := NewLogger(failingRepository{})
	assert.NotPanics(t, func() {
		logger.Log(context.Background(), nil, ActionLogin, "ignored")
	})
}

func TestMiddlewareStoresMeta(t *testing.T) {
	var got RequestMeta
	handler := Middleware(func(r *http.Request) string { return "9.9.9.9" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = MetaFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "game-client/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "9.9.9.9", got.IPAddress)
	assert.Equal(t, "game-client/1.0", got.UserAgent)
}

func TestMetaFromEmptyContext(t *testing.T) {
	assert.Equal(t, RequestMeta{}, MetaFromContext(context.Background()))
}
