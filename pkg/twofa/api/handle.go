package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/client"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/twofa"
)

// TwoFactorService is the part of twofa.Service the handlers call
type TwoFactorService interface {
	BeginSetup(ctx context.Context, userID uuid.UUID) (twofa.Setup, error)
	ConfirmSetup(ctx context.Context, userID uuid.UUID, secret, code string) error
	Disable(ctx context.Context, userID uuid.UUID, code, backupCode string) error
}

type Handle struct {
	twoFaService TwoFactorService
}

func NewHandle(twoFaService TwoFactorService) *Handle {
	return &Handle{twoFaService: twoFaService}
}

// Routes must be mounted behind client.RequireAuth
func (h *Handle) Routes(r chi.Router) {
	r.Get("/setup", h.GetSetup)
	r.Post("/setup", h.PostSetup)
	r.Post("/disable", h.PostDisable)
}

type ConfirmSetupRequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

type DisableRequest struct {
	Code       string `json:"code"`
	BackupCode string `json:"backup_code"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetSetup handles GET /2fa/setup
func (h *Handle) GetSetup(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	setup, err := h.twoFaService.BeginSetup(r.Context(), authUser.UserID)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, setup)
}

// PostSetup handles POST /2fa/setup
func (h *Handle) PostSetup(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	var req ConfirmSetupRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Code == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("code", "is required"))
		return
	}

	if err := h.twoFaService.ConfirmSetup(r.Context(), authUser.UserID, req.Secret, req.Code); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Success: true, Message: "Two-factor authentication enabled"})
}

// PostDisable handles POST /2fa/disable
func (h *Handle) PostDisable(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r)
	if !ok {
		apperrors.WriteHTTP(w, r, apperrors.InvalidToken())
		return
	}

	var req DisableRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Code == "" && req.BackupCode == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("code", "a code or backup code is required"))
		return
	}

	if err := h.twoFaService.Disable(r.Context(), authUser.UserID, req.Code, req.BackupCode); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Success: true, Message: "Two-factor authentication disabled"})
}
