package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// FingerprintData contains the client signals hashed into a device fingerprint
type FingerprintData struct {
	UserAgent        string
	AcceptHeaders    string
	Timezone         string
	ScreenResolution string
	DeviceID         string // sent by the game client on mobile
}

// GenerateFingerprint hashes the signals with SHA-256.
// A mobile device ID, when present, is used on its own.
func GenerateFingerprint(data FingerprintData) string {
	combined := data.DeviceID
	if combined == "" {
		combined = fmt.Sprintf("%s|%s|%s|%s",
			data.UserAgent,
			data.AcceptHeaders,
			data.Timezone,
			data.ScreenResolution,
		)
	}
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ExtractFingerprintDataFromRequest reads the fingerprint signals from r
func ExtractFingerprintDataFromRequest(r *http.Request) FingerprintData {
	return FingerprintData{
		UserAgent: r.UserAgent(),
		AcceptHeaders: r.Header.Get("Accept") + "|" +
			r.Header.Get("Accept-Language") + "|" +
			r.Header.Get("Accept-Encoding"),
		Timezone:         r.Header.Get("Timezone"),
		ScreenResolution: r.Header.Get("Screen-Resolution"),
		DeviceID:         r.Header.Get("X-Device-ID"),
	}
}

// RequestFingerprint returns the fingerprint for r. A fingerprint remembered in the
// ban marker cookie wins over the one derived from headers, so changing headers
// after a ban does not produce a fresh identity.
func RequestFingerprint(r *http.Request) string {
	if c, err := r.Cookie(FingerprintCookieName); err == nil && isHexFingerprint(c.Value) {
		return c.Value
	}
	return GenerateFingerprint(ExtractFingerprintDataFromRequest(r))
}

func isHexFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
