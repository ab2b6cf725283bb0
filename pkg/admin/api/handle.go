package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/admin"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/client"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
)

// AdminService is the moderation surface the handlers call
type AdminService interface {
	Check(ctx context.Context, userID *uuid.UUID) admin.CheckResult
	UserAction(ctx context.Context, actorID uuid.UUID, req admin.UserActionRequest) (admin.UserActionResult, error)
	ResetPassword(ctx context.Context, actorID uuid.UUID, req admin.ResetPasswordRequest) error
	ManageRole(ctx context.Context, actorID uuid.UUID, req admin.RoleRequest) (admin.RoleResult, error)
	BanExclusions(ctx context.Context, actorID uuid.UUID) ([]device.Exclusion, error)
	ManageBanExclusion(ctx context.Context, actorID uuid.UUID, req admin.ExclusionRequest) error
	DeviceBans(ctx context.Context, actorID uuid.UUID) ([]device.Ban, error)
	ManageDeviceBan(ctx context.Context, actorID uuid.UUID, req admin.DeviceBanRequest) (*device.Ban, error)
	BanReport(ctx context.Context, actorID uuid.UUID) ([]admin.BanReportEntry, error)
	AuditLog(ctx context.Context, actorID uuid.UUID, filter audit.Filter) ([]audit.Entry, error)
}

type Handle struct {
	service AdminService
}

func NewHandle(service AdminService) Handle {
	return Handle{service: service}
}

// Routes mounts the admin endpoints. /check answers anonymous callers; every other route
// needs a session and leaves the admin check to the service so denials are audited.
func (h Handle) Routes(r chi.Router) {
	r.Get("/check", h.Check)
	r.Group(func(r chi.Router) {
		r.Use(client.RequireAuth)
		r.Post("/users/action", h.UserAction)
		r.Post("/users/reset-password", h.ResetPassword)
		r.Post("/roles", h.ManageRole)
		r.Get("/ban-exclusions", h.ListBanExclusions)
		r.Post("/ban-exclusions", h.ManageBanExclusion)
		r.Get("/device-bans", h.ListDeviceBans)
		r.Post("/device-bans", h.ManageDeviceBan)
		r.Get("/bans", h.BanReport)
		r.Get("/audit-log", h.AuditLog)
	})
}

func actor(r *http.Request) uuid.UUID {
	authUser, _ := client.GetAuthUser(r)
	return authUser.UserID
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return false
	}
	return true
}

// Check handles GET /check
func (h Handle) Check(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if authUser, ok := client.GetAuthUser(r); ok {
		userID = &authUser.UserID
	}
	render.JSON(w, r, h.service.Check(r.Context(), userID))
}

// UserAction handles POST /users/action
func (h Handle) UserAction(w http.ResponseWriter, r *http.Request) {
	var req admin.UserActionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.UserAction(r.Context(), actor(r), req)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// ResetPassword handles POST /users/reset-password
func (h Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req admin.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), actor(r), req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Password reset successfully",
	})
}

// ManageRole handles POST /roles
func (h Handle) ManageRole(w http.ResponseWriter, r *http.Request) {
	var req admin.RoleRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.ManageRole(r.Context(), actor(r), req)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// ListBanExclusions handles GET /ban-exclusions
func (h Handle) ListBanExclusions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.BanExclusions(r.Context(), actor(r))
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"exclusions": list,
		"total":      len(list),
	})
}

// ManageBanExclusion handles POST /ban-exclusions
func (h Handle) ManageBanExclusion(w http.ResponseWriter, r *http.Request) {
	var req admin.ExclusionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.ManageBanExclusion(r.Context(), actor(r), req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	message := "User added to ban exclusions"
	if req.Action == "remove" {
		message = "User removed from ban exclusions"
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// ListDeviceBans handles GET /device-bans
func (h Handle) ListDeviceBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.service.DeviceBans(r.Context(), actor(r))
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"bans":  bans,
		"total": len(bans),
	})
}

// ManageDeviceBan handles POST /device-bans
func (h Handle) ManageDeviceBan(w http.ResponseWriter, r *http.Request) {
	var req admin.DeviceBanRequest
	if !decode(w, r, &req) {
		return
	}
	ban, err := h.service.ManageDeviceBan(r.Context(), actor(r), req)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	if ban == nil {
		render.JSON(w, r, map[string]interface{}{
			"success": true,
			"message": "Device ban lifted",
		})
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Device banned",
		"ban":     ban,
	})
}

// BanReport handles GET /bans
func (h Handle) BanReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.BanReport(r.Context(), actor(r))
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"users": report,
		"total": len(report),
	})
}

// AuditLog handles GET /audit-log?user_id=&action=&since=&until=&limit=&offset=
func (h Handle) AuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	entries, err := h.service.AuditLog(r.Context(), actor(r), filter)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	filter = filter.Normalize()
	render.JSON(w, r, map[string]interface{}{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperrors.InvalidInput("user_id", "must be a UUID")
		}
		f.UserID = &id
	}
	f.Action = q.Get("action")

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperrors.InvalidInput(p.name, "must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperrors.InvalidInput(p.name, "must be an integer")
		}
		*p.dst = n
	}
	return f, nil
}
