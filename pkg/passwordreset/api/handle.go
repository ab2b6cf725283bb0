package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/passwordreset"
)

// ResetService is the part of passwordreset.Service the handlers call
type ResetService interface {
	Request(ctx context.Context, email, ip string) error
	Confirm(ctx context.Context, token, password string) error
}

type ForgotRequest struct {
	Email string `json:"email"`
}

type ResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type Handle struct {
	service ResetService
}

func NewHandle(service ResetService) Handle {
	return Handle{service: service}
}

// Routes mounts POST /forgot and POST /reset
func (h Handle) Routes(r chi.Router) {
	r.Post("/forgot", h.Forgot)
	r.Post("/reset", h.Reset)
}

// Forgot handles POST /forgot
func (h Handle) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("email", "invalid email address"))
		return
	}
	if err := h.service.Request(r.Context(), req.Email, device.ClientIP(r)); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": passwordreset.GenericMessage,
	})
}

// Reset handles POST /reset
func (h Handle) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("token", "missing token or password"))
		return
	}
	if err := h.service.Confirm(r.Context(), req.Token, req.Password); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Password reset successfully. Please log in with your new password.",
	})
}
