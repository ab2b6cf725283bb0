package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*sessions.Manager, *user.InMemoryRepository, user.User, string) {
	t.Helper()
	ctx := context.Background()
	users := user.NewInMemoryRepository()
	u, err := users.Create(ctx, user.CreateParams{Username: "alice", Email: "alice@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	manager := sessions.NewManager(sessions.NewInMemoryRepository())
	s, err := manager.Issue(ctx, u.ID, "1.2.3.4", "agent", time.Hour)
	require.NoError(t, err)
	return manager, users, u, s.Token
}

func whoami(w http.ResponseWriter, r *http.Request) {
	if u, ok := GetAuthUser(r); ok {
		w.Write([]byte(u.Username))
		return
	}
	w.Write([]byte("anonymous"))
}

func TestAuthenticator(t *testing.T) {
	manager, users, _, token := setup(t)
	handler := Authenticator(manager, users, SESSION_COOKIE_NAME)(http.HandlerFunc(whoami))

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{"no token", func(r *http.Request) {}, "anonymous"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "alice"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SESSION_COOKIE_NAME, Value: token}) }, "alice"},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRequireAuth(t *testing.T) {
	manager, users, _, token := setup(t)
	handler := Authenticator(manager, users, SESSION_COOKIE_NAME)(RequireAuth(http.HandlerFunc(whoami)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_INVALID")

	require.NoError(t, manager.Revoke(context.Background(), token))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionCookies(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, SESSION_COOKIE_NAME, "abc", expires, CookieOptions{Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, SESSION_COOKIE_NAME, CookieOptions{})
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
