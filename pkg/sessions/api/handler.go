package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/client"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/sessions"
)

// SessionService is the part of sessions.Manager the handlers call
type SessionService interface {
	ListSummaries(ctx context.Context, userID uuid.UUID, currentToken string) (sessions.SessionListResponse, error)
	RevokeOwned(ctx context.Context, userID uuid.UUID, target string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) (int, error)
}

// Handler handles HTTP requests for session management
type Handler struct {
	service SessionService
}

// NewHandler creates a new session handler
func NewHandler(service SessionService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the session management routes
// These routes should be mounted under an authenticated route group
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListSessions)
	r.Post("/revoke", h.RevokeSession)
	r.Post("/revoke-all", h.RevokeAllSessions)
}

// ListSessions handles GET /sessions - List active sessions for current user
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	response, err := h.service.ListSummaries(r.Context(), authUser.UserID, authUser.Token)
	if err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InternalWrap(err, "failed to list sessions"))
		return
	}
	render.JSON(w, r, response)
}

// RevokeSession handles POST /sessions/revoke - Revoke a specific session
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	var req sessions.RevokeSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Token == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("token", "is required"))
		return
	}

	err := h.service.RevokeOwned(r.Context(), authUser.UserID, req.Token)
	switch {
	case err == nil:
	case errors.Is(err, sessions.ErrSessionNotFound):
		apperrors.WriteHTTP(w, r, apperrors.NotFound("session", "token"))
		return
	case errors.Is(err, sessions.ErrNotOwner):
		slog.Warn("Attempt to revoke another user's session", "user", authUser)
		apperrors.WriteHTTP(w, r, apperrors.Forbidden("Session belongs to another user"))
		return
	default:
		apperrors.WriteHTTP(w, r, apperrors.InternalWrap(err, "failed to revoke session"))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Session revoked",
		"current": req.Token == authUser.Token,
	})
}

// RevokeAllSessions handles POST /sessions/revoke-all - sign out everywhere
func (h *Handler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	n, err := h.service.RevokeAll(r.Context(), authUser.UserID)
	if err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InternalWrap(err, "failed to revoke sessions"))
		return
	}
	render.JSON(w, r, map[string]interface{}{"success": true, "revoked": n})
}
