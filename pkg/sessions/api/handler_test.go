package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/client"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	ctx := context.Background()
	manager := sessions.NewManager(sessions.NewInMemoryRepository())
	alice, bob := uuid.New(), uuid.New()

	current, err := manager.Issue(ctx, alice, "1.1.1.1", "a", time.Hour)
	require.NoError(t, err)
	other, err := manager.Issue(ctx, alice, "2.2.2.2", "b", time.Hour)
	require.NoError(t, err)
	bobs, err := manager.Issue(ctx, bob, "3.3.3.3", "c", time.Hour)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			au := &client.AuthUser{UserID: alice, Username: "alice", Token: current.Token}
			next.ServeHTTP(w, req.WithContext(client.WithAuthUser(req.Context(), au)))
		})
	})
	NewHandler(manager).RegisterRoutes(r)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/revoke", strings.NewReader(body)))
		return rec
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list sessions.SessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	currents := 0
	for _, s := range list.Sessions {
		if s.Current {
			currents++
			assert.Equal(t, current.Token, s.Token)
		}
	}
	assert.Equal(t, 1, currents)

	assert.Equal(t, http.StatusForbidden, post(`{"token":"`+bobs.Token+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusOK, post(`{"token":"`+other.Token+`"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"token":"`+other.Token+`"}`).Code)

	_, err = manager.Validate(ctx, bobs.Token)
	assert.NoError(t, err)
}
