package signup

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/client"
	"github.com/mytad/game-auth/pkg/device"
	apperrors "github.com/mytad/game-auth/pkg/errors"
)

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned with 201 Created
type RegisterResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	UserID    uuid.UUID  `json:"user_id"`
	Username  string     `json:"username"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PasswordPolicyResponse describes the password rules for sign-up forms
type PasswordPolicyResponse struct {
	MinLength          int  `json:"min_length"`
	MaxLength          int  `json:"max_length"`
	RequireUppercase   bool `json:"require_uppercase"`
	RequireLowercase   bool `json:"require_lowercase"`
	RequireDigit       bool `json:"require_digit"`
	RequireSpecialChar bool `json:"require_special_char"`
}

type Handle struct {
	service *SignupService
	cookies client.CookieOptions
	markers device.MarkerOptions
	now     func() time.Time
}

type Option func(*Handle)

func NewHandle(service *SignupService, opts ...Option) *Handle {
	h := &Handle{service: service, now: time.Now}

	// Apply all options
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

// Routes mounts the registration endpoints
func (h *Handle) Routes(r chi.Router) {
	r.Post("/register", h.RegisterUser)
	r.Get("/password-policy", h.GetPasswordPolicy)
}

// RegisterUser handles POST /register
func (h *Handle) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var request RegisterRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidInput("body", "missing required fields: username, email, password"))
		return
	}

	fingerprint := device.RequestFingerprint(r)
	result, err := h.service.RegisterUser(r.Context(), RegisterUserRequest{
		Username:    request.Username,
		Email:       request.Email,
		Password:    request.Password,
		Fingerprint: fingerprint,
		IPAddress:   device.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		if ban, ok := device.BanFromError(err); ok {
			device.SetBanMarker(w, ban, fingerprint, h.markers, h.now())
		}
		apperrors.WriteHTTP(w, r, err)
		return
	}

	resp := RegisterResponse{
		Success:  true,
		Message:  "Account created successfully",
		UserID:   result.UserID,
		Username: result.Username,
	}
	if result.Token != "" {
		client.SetSessionCookie(w, client.SESSION_COOKIE_NAME, result.Token, result.ExpiresAt, h.cookies)
		resp.Token = result.Token
		resp.ExpiresAt = &result.ExpiresAt
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetPasswordPolicy returns the password complexity requirements
func (h *Handle) GetPasswordPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.service.GetPasswordPolicy()
	render.JSON(w, r, PasswordPolicyResponse{
		MinLength:          p.MinLength,
		MaxLength:          p.MaxLength,
		RequireUppercase:   p.RequireUppercase,
		RequireLowercase:   p.RequireLowercase,
		RequireDigit:       p.RequireDigit,
		RequireSpecialChar: p.RequireSpecialChar,
	})
}
