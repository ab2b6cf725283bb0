package device

import (
	"net/http"
	"time"
)

// Marker cookies set when a banned device is detected
const (
	BannedCookieName      = "mytad_device_banned"
	FingerprintCookieName = "mytad_device_fingerprint"

	DefaultMarkerDays = 30
)

// MarkerOptions controls the ban marker cookies
type MarkerOptions struct {
	Secure        bool
	Domain        string
	PermanentDays int
}

// SetBanMarker remembers the ban and the fingerprint it matched on the client.
// Temporary bans expire the cookies with the ban.
func SetBanMarker(w http.ResponseWriter, ban Ban, fingerprint string, opts MarkerOptions, now time.Time) {
	days := opts.PermanentDays
	if days <= 0 {
		days = DefaultMarkerDays
	}
	expires := now.AddDate(0, 0, days)
	if !ban.IsPermanent && ban.BannedUntil != nil {
		expires = *ban.BannedUntil
	}

	for name, value := range map[string]string{
		BannedCookieName:      "1",
		FingerprintCookieName: fingerprint,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   opts.Domain,
			Expires:  expires,
			Secure:   opts.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// HasBanMarker reports whether r carries the banned marker
func HasBanMarker(r *http.Request) bool {
	c, err := r.Cookie(BannedCookieName)
	return err == nil && c.Value == "1"
}

// ClearBanMarker expires both marker cookies, used once the ban no longer applies
func ClearBanMarker(w http.ResponseWriter, opts MarkerOptions) {
	for _, name := range []string{BannedCookieName, FingerprintCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   opts.Domain,
			MaxAge:   -1,
			Secure:   opts.Secure,
			HttpOnly: true,
		})
	}
}
