package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// AuthUser is the identity resolved from a valid session token
type AuthUser struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	// Token is the session token the request was authenticated with
	Token string `json:"-"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserID.String()),
		slog.String("username", i.Username),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation. This technique
// for defining context keys was copied from Go 1.7's new use of context in net/http.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "gameauth context value " + k.name
}

const SESSION_COOKIE_NAME = "mytad_session"

var (
	AuthUserKey = &contextKey{"AuthUser"}
)

// WithAuthUser returns a copy of ctx carrying user
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

// GetAuthUser returns the authenticated user of r, if any
func GetAuthUser(r *http.Request) (*AuthUser, bool) {
	user, ok := r.Context().Value(AuthUserKey).(*AuthUser)
	return user, ok && user != nil
}

// TokenFromCookie returns an extractor reading the named cookie
func TokenFromCookie(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// ExtractToken reads the bearer header first and falls back to the session cookie.
func ExtractToken(r *http.Request, cookieName string) string {
	for _, extractor := range []func(*http.Request) string{
		jwtauth.TokenFromHeader,
		TokenFromCookie(cookieName),
	} {
		if token := extractor(r); token != "" {
			return token
		}
	}
	return ""
}
