package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/mytad/game-auth/pkg/client"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/loginflow"
	"github.com/mytad/game-auth/pkg/sessions"
	"github.com/mytad/game-auth/pkg/user"
)

// LoginService is the part of loginflow.Service the handlers call
type LoginService interface {
	Login(ctx context.Context, req loginflow.Request) (loginflow.Result, error)
	Verify2FA(ctx context.Context, req loginflow.Request) (loginflow.Result, error)
	Logout(ctx context.Context, token string, userID *uuid.UUID) error
	Refresh(ctx context.Context, token, ip, userAgent string) (sessions.Session, error)
	CurrentSession(ctx context.Context, token string) (sessions.Session, user.User, error)
}

type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type Verify2FARequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
	BackupCode     string `json:"backup_code"`
}

type RefreshRequest struct {
	Token string `json:"token"`
}

// UserResponse is the profile returned with a session
type UserResponse struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	IsMuted          bool       `json:"is_muted"`
	MutedUntil       *time.Time `json:"muted_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

type LoginResponse struct {
	Success            bool          `json:"success"`
	Message            string        `json:"message"`
	RequiresTwoFA      bool          `json:"requires_2fa"`
	ChallengeToken     string        `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time    `json:"challenge_expires_at,omitempty"`
	Token              string        `json:"token,omitempty"`
	ExpiresAt          *time.Time    `json:"expires_at,omitempty"`
	RememberToken      string        `json:"remember_token,omitempty"`
	RememberExpiresAt  *time.Time    `json:"remember_expires_at,omitempty"`
	User               *UserResponse `json:"user,omitempty"`
}

type SessionResponse struct {
	Valid        bool         `json:"valid"`
	User         UserResponse `json:"user"`
	ExpiresAt    time.Time    `json:"expires_at"`
	LastActivity time.Time    `json:"last_activity"`
}

type Handle struct {
	service LoginService
	cookies client.CookieOptions
	markers device.MarkerOptions
	now     func() time.Time
}

type Option func(*Handle)

func NewHandle(service LoginService, opts ...Option) *Handle {
	h := &Handle{service: service, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func WithCookieOptions(opts client.CookieOptions) Option {
	return func(h *Handle) {
		h.cookies = opts
	}
}

func WithMarkerOptions(opts device.MarkerOptions) Option {
	return func(h *Handle) {
		h.markers = opts
	}
}

// Routes mounts the login and session endpoints
func (h *Handle) Routes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/verify-2fa", h.Verify2FA)
	r.Post("/logout", h.Logout)
	r.Post("/refresh", h.Refresh)
	r.Get("/session", h.Session)
}

func toUserResponse(u user.User) *UserResponse {
	var resp UserResponse
	if err := copier.Copy(&resp, &u); err != nil {
		slog.Error("Failed to map user response", "err", err)
	}
	return &resp
}

// writeResult sets the session cookies and renders a completed or pending login
func (h *Handle) writeResult(w http.ResponseWriter, r *http.Request, result loginflow.Result) {
	if result.RequiresTwoFA {
		render.JSON(w, r, LoginResponse{
			Success:            true,
			Message:            "Two-factor authentication required",
			RequiresTwoFA:      true,
			ChallengeToken:     result.ChallengeToken,
			ChallengeExpiresAt: &result.ChallengeExpiresAt,
			User:               toUserResponse(result.User),
		})
		return
	}

	resp := LoginResponse{
		Success: true,
		Message: "Login successful",
		User:    toUserResponse(result.User),
	}
	if s := result.Session; s != nil {
		client.SetSessionCookie(w, client.SESSION_COOKIE_NAME, s.Token, s.ExpiresAt, h.cookies)
		resp.Token = s.Token
		resp.ExpiresAt = &s.ExpiresAt
	}
	if s := result.RememberSession; s != nil {
		client.SetSessionCookie(w, client.REMEMBER_COOKIE_NAME, s.Token, s.ExpiresAt, h.cookies)
		resp.RememberToken = s.Token
		resp.RememberExpiresAt = &s.ExpiresAt
	}
	render.JSON(w, r, resp)
}

// Login handles POST /login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var request LoginRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "username and password are required"))
		return
	}

	fingerprint := device.RequestFingerprint(r)
	result, err := h.service.Login(r.Context(), loginflow.Request{
		Username:    request.Username,
		Password:    request.Password,
		RememberMe:  request.RememberMe,
		IPAddress:   device.ClientIP(r),
		UserAgent:   r.UserAgent(),
		Fingerprint: fingerprint,
	})
	if err != nil {
		if ban, ok := device.BanFromError(err); ok {
			device.SetBanMarker(w, ban, fingerprint, h.markers, h.now())
		}
		apperrors.WriteHTTP(w, r, err)
		return
	}
	h.writeResult(w, r, result)
}

// Verify2FA handles POST /verify-2fa
func (h *Handle) Verify2FA(w http.ResponseWriter, r *http.Request) {
	var request Verify2FARequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "challenge token and code are required"))
		return
	}

	result, err := h.service.Verify2FA(r.Context(), loginflow.Request{
		ChallengeToken: request.ChallengeToken,
		TwoFACode:      request.Code,
		BackupCode:     request.BackupCode,
		IPAddress:      device.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	h.writeResult(w, r, result)
}

// Logout handles POST /logout. It ends the session and the remember-me session, if any.
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if authUser, ok := client.GetAuthUser(r); ok {
		userID = &authUser.UserID
	}

	for _, token := range []string{
		client.ExtractToken(r, client.SESSION_COOKIE_NAME),
		client.TokenFromCookie(client.REMEMBER_COOKIE_NAME)(r),
	} {
		if token == "" {
			continue
		}
		if err := h.service.Logout(r.Context(), token, userID); err != nil {
			apperrors.WriteHTTP(w, r, err)
			return
		}
		// audit once per logout
		userID = nil
	}

	client.ClearSessionCookie(w, client.SESSION_COOKIE_NAME, h.cookies)
	client.ClearSessionCookie(w, client.REMEMBER_COOKIE_NAME, h.cookies)
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Refresh handles POST /refresh. The token may come in the body, the header or the cookie.
func (h *Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	var request RefreshRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &request); err != nil {
			apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "malformed request"))
			return
		}
	}
	token := request.Token
	if token == "" {
		token = client.ExtractToken(r, client.SESSION_COOKIE_NAME)
	}
	if token == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	session, err := h.service.Refresh(r.Context(), token, device.ClientIP(r), r.UserAgent())
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	client.SetSessionCookie(w, client.SESSION_COOKIE_NAME, session.Token, session.ExpiresAt, h.cookies)
	render.JSON(w, r, map[string]interface{}{
		"success":    true,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Session handles GET /session
func (h *Handle) Session(w http.ResponseWriter, r *http.Request) {
	token := client.ExtractToken(r, client.SESSION_COOKIE_NAME)
	if token == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}
	session, u, err := h.service.CurrentSession(r.Context(), token)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, SessionResponse{
		Valid:        true,
		User:         *toUserResponse(u),
		ExpiresAt:    session.ExpiresAt,
		LastActivity: session.LastActivity,
	})
}
