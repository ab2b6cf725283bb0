package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
)

// SessionValidator validates a bearer token
type SessionValidator interface {
	Validate(ctx context.Context, token string) (sessions.Session, error)
}

// UserLoader loads the account behind a session
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

// Authenticator attaches the AuthUser for a valid token and passes every request through.
// Use RequireAuth to reject anonymous requests.
func Authenticator(validator SessionValidator, users UserLoader, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := validator.Validate(r.Context(), token)
			if err != nil {
				if !apperrors.Is(err, sessions.ErrInvalidSession) {
					slog.Error("Failed to validate session", "err", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			u, err := users.GetByID(r.Context(), session.UserID)
			if err != nil {
				slog.Warn("Session user could not be loaded", "user_id", session.UserID, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			authUser := &AuthUser{UserID: u.ID, Username: u.Username, Email: u.Email, Token: token}
			slog.Debug("authenticated user", "user", authUser)
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
		})
	}
}

// RequireAuth returns 401 unless Authenticator resolved a user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthUser(r); !ok {
			slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
			return
		}
		next.ServeHTTP(w, r)
	})
}
