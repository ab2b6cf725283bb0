package client

import (
	"net/http"
	"time"
)

const REMEMBER_COOKIE_NAME = "mytad_remember"

// CookieOptions controls the session cookies
type CookieOptions struct {
	Secure bool
	Domain string
}

// SetSessionCookie stores token in the named cookie until expires
func SetSessionCookie(w http.ResponseWriter, name, token string, expires time.Time, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Domain:   opts.Domain,
		Expires:  expires,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the named cookie
func ClearSessionCookie(w http.ResponseWriter, name string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   -1,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
