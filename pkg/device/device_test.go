package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/user"
	"github.com/mytad/game-auth/pkg/utils/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyResolver(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	resolver := NewProxyResolver(trusted)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "10.0.0.5:1234", "1.1.1.1"},
		{"first forwarded entry", map[string]string{"X-Forwarded-For": "2.2.2.2, 3.3.3.3"}, "10.0.0.5:1234", "2.2.2.2"},
		{"x-forwarded", map[string]string{"X-Forwarded": "4.4.4.4"}, "10.0.0.5:1234", "4.4.4.4"},
		{"forwarded-for", map[string]string{"Forwarded-For": "5.5.5.5"}, "10.0.0.5:1234", "5.5.5.5"},
		{"trusted ipv6 peer", map[string]string{"X-Forwarded-For": "6.6.6.6"}, "[::1]:80", "6.6.6.6"},
		{"untrusted peer spoofs cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1"}, "9.9.9.9:1234", "9.9.9.9"},
		{"untrusted peer spoofs forwarded", map[string]string{"X-Forwarded-For": "2.2.2.2"}, "9.9.9.9:1234", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.5:1234", "10.0.0.5"},
		{"ipv6 remote", nil, "[2001:db8::1]:80", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, resolver.Resolve(r))
		})
	}
}

func TestProxyResolver_NoTrustedProxies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:1234"
	r.Header.Set("CF-Connecting-IP", "1.1.1.1")
	r.Header.Set("X-Forwarded-For", "2.2.2.2")

	assert.Equal(t, "10.0.0.5", NewProxyResolver(nil).Resolve(r))
	assert.Equal(t, "10.0.0.5", ClientIP(r))
}

func TestClientIP_FromMiddleware(t *testing.T) {
	resolver := NewProxyResolver([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})
	var got string
	h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:4000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "203.0.113.9", got)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.2:4000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.2", got)
}

func TestFingerprint(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("User-Agent", "game/1.0")
	a.Header.Set("Accept-Language", "en")

	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.Header.Set("User-Agent", "game/1.0")
	b.Header.Set("Accept-Language", "en")

	fp := RequestFingerprint(a)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, RequestFingerprint(b), "same signals, same fingerprint")

	b.Header.Set("User-Agent", "game/2.0")
	assert.NotEqual(t, fp, RequestFingerprint(b))

	b.AddCookie(&http.Cookie{Name: FingerprintCookieName, Value: fp})
	assert.Equal(t, fp, RequestFingerprint(b), "marker cookie wins")

	c := httptest.NewRequest(http.MethodGet, "/", nil)
	c.AddCookie(&http.Cookie{Name: FingerprintCookieName, Value: "not-a-hash"})
	assert.NotEqual(t, "not-a-hash", RequestFingerprint(c))

	mobile := FingerprintData{UserAgent: "x", DeviceID: "device-123"}
	assert.Equal(t, GenerateFingerprint(FingerprintData{DeviceID: "device-123"}), GenerateFingerprint(mobile))
}

func TestBanMarkerCookies(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(48 * time.Hour)

	rec := httptest.NewRecorder()
	SetBanMarker(rec, Ban{BannedUntil: &until}, "abc", MarkerOptions{PermanentDays: 30}, now)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, until, c.Expires.UTC())
	}

	rec = httptest.NewRecorder()
	SetBanMarker(rec, Ban{IsPermanent: true}, "abc", MarkerOptions{PermanentDays: 30}, now)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, now.AddDate(0, 0, 30), c.Expires.UTC())
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, HasBanMarker(r))
	r.AddCookie(&http.Cookie{Name: BannedCookieName, Value: "1"})
	assert.True(t, HasBanMarker(r))

	rec = httptest.NewRecorder()
	ClearBanMarker(rec, MarkerOptions{})
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
}

func exerciseGuard(t *testing.T, bans BanRepository, exclusions ExclusionRepository, users user.Repository) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuard(bans, exclusions).WithClock(func() time.Time { return now })

	bob, err := users.Create(ctx, user.CreateParams{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	eve, err := users.Create(ctx, user.CreateParams{Username: "eve", Email: "eve@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	const fp = "fp-shared"

	t.Run("no ban", func(t *testing.T) {
		ban, err := guard.Check(ctx, fp, "1.1.1.1", nil)
		require.NoError(t, err)
		assert.Nil(t, ban)
	})

	_, err = guard.BanDevice(ctx, BanParams{})
	assert.ErrorIs(t, err, ErrNoBanTarget)

	require.NoError(t, guard.AddExclusion(ctx, bob.ID, "Added to protection list", nil))
	assert.ErrorIs(t, guard.AddExclusion(ctx, bob.ID, "again", nil), ErrAlreadyExcluded)

	ban, err := guard.BanDevice(ctx, BanParams{Fingerprint: fp, Reason: "cheating"})
	require.NoError(t, err)
	assert.True(t, ban.IsPermanent)

	t.Run("excluded user bypasses", func(t *testing.T) {
		got, err := guard.Check(ctx, fp, "1.1.1.1", &bob.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other user blocked", func(t *testing.T) {
		got, err := guard.Check(ctx, fp, "1.1.1.1", &eve.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ban.ID, got.ID)
	})

	t.Run("anonymous blocked", func(t *testing.T) {
		got, err := guard.Check(ctx, fp, "", nil)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("temporary ip ban expires", func(t *testing.T) {
		_, err := guard.BanDevice(ctx, BanParams{IPAddress: "6.6.6.6", Duration: time.Hour})
		require.NoError(t, err)

		got, err := guard.IsBanned(ctx, "other-fp", "6.6.6.6")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.IsPermanent)

		later := NewGuard(bans, exclusions).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
		got, err = later.IsBanned(ctx, "other-fp", "6.6.6.6")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list and lift", func(t *testing.T) {
		active, err := guard.ActiveBans(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		require.NoError(t, guard.LiftBan(ctx, ban.ID))
		assert.ErrorIs(t, guard.LiftBan(ctx, ban.ID), ErrBanNotFound)
		assert.ErrorIs(t, guard.LiftBan(ctx, uuid.New()), ErrBanNotFound)

		got, err := guard.Check(ctx, fp, "1.1.1.1", &eve.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("exclusions listing", func(t *testing.T) {
		list, err := guard.Exclusions(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "bob", list[0].Username)
		assert.Equal(t, "Added to protection list", list[0].Reason)

		require.NoError(t, guard.RemoveExclusion(ctx, bob.ID))
		assert.ErrorIs(t, guard.RemoveExclusion(ctx, bob.ID), ErrExclusionNotFound)
		excluded, err := guard.IsExcluded(ctx, bob.ID)
		require.NoError(t, err)
		assert.False(t, excluded)
	})
}

func TestGuard_InMemory(t *testing.T) {
	users := user.NewInMemoryRepository()
	exerciseGuard(t, NewInMemoryBanRepository(), NewInMemoryExclusionRepository(users), users)
}

func TestGuard_Postgres(t *testing.T) {
	pool, cleanup := pgtest.SetupTestDatabase(t)
	defer cleanup()

	exerciseGuard(t, NewPostgresBanRepository(pool), NewPostgresExclusionRepository(pool), user.NewPostgresRepository(pool))
}

func TestDeniedCarriesBan(t *testing.T) {
	until := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ban := Ban{ID: uuid.New(), BannedUntil: &until}

	err := Denied(ban)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDeviceBanned))
	assert.Equal(t, "2024-01-02T03:04:05Z", err.Details["banned_until"])

	got, ok := BanFromError(fmt.Errorf("login: %w", err))
	require.True(t, ok)
	assert.Equal(t, ban.ID, got.ID)

	_, ok = BanFromError(apperrors.Forbidden("nope"))
	assert.False(t, ok)
}
