package twofa

import (
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultIssuer = "myTAD"
	PERIOD        = 30
	SKEW          = 1
)

var validateOpts = totp.ValidateOpts{
	Period:    PERIOD,
	Skew:      SKEW,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTotpKey creates a new shared secret for accountName
func GenerateTotpKey(issuer, accountName string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      PERIOD,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "issuer", issuer, "err", err)
		return nil, err
	}
	return key, nil
}

// GenerateTotpPasscode returns the code for secret at t
func GenerateTotpPasscode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts)
}

// ValidateTotpPasscode checks passcode against secret at t, allowing one step of drift either way.
// A malformed secret or passcode is reported as invalid.
func ValidateTotpPasscode(secret, passcode string, t time.Time) bool {
	if secret == "" || len(passcode) != 6 {
		return false
	}
	valid, err := totp.ValidateCustom(passcode, secret, t.UTC(), validateOpts)
	if err != nil {
		slog.Warn("Failed to validate totp passcode", "err", err)
		return false
	}
	return valid
}
