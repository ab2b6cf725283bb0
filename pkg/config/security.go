package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sosodev/duration"
)

// SecurityConfig holds the account-security policy. Periods are ISO-8601 durations
// ("PT30M", "P30D") the same way the password policy expresses them.
type SecurityConfig struct {
	SessionDuration     string `env:"SESSION_DURATION" env-default:"PT24H"`
	RememberMeDuration  string `env:"REMEMBER_ME_DURATION" env-default:"P30D"`
	LockoutThreshold    int    `env:"LOCKOUT_THRESHOLD" env-default:"5"`
	LockoutDuration     string `env:"LOCKOUT_DURATION" env-default:"PT30M"`
	AdminLockDuration   string `env:"ADMIN_LOCK_DURATION" env-default:"PT24H"`
	RateLimitAttempts   int    `env:"RATE_LIMIT_MAX_ATTEMPTS" env-default:"5"`
	RateLimitWindow     string `env:"RATE_LIMIT_WINDOW" env-default:"PT15M"`
	TwoFAChallengeTTL   string `env:"TWO_FA_CHALLENGE_TTL" env-default:"PT10M"`
	PasswordResetTTL    string `env:"PASSWORD_RESET_TTL" env-default:"PT1H"`
	PasswordResetPerIP  int    `env:"PASSWORD_RESET_MAX_PER_HOUR" env-default:"3"`
	BcryptCost          int    `env:"BCRYPT_COST" env-default:"12"`
	OwnerUsername       string `env:"OWNER_USERNAME" env-default:"thatoneamiho"`
	OwnerEmail          string `env:"OWNER_EMAIL" env-default:""`
	TotpIssuer          string `env:"TOTP_ISSUER" env-default:"myTAD"`
	ChallengeSecret     string `env:"CHALLENGE_SIGNING_SECRET" env-default:""`
	FrontendURL         string `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	LoginNotifyNewIP    bool   `env:"LOGIN_NOTIFY_NEW_IP" env-default:"true"`
	DeviceBanCookieDays int    `env:"DEVICE_BAN_COOKIE_DAYS" env-default:"30"`
	// Comma separated CIDRs whose CF-Connecting-IP and X-Forwarded-For headers are believed.
	// Empty trusts no proxy and uses the socket address.
	TrustedProxies      string `env:"TRUSTED_PROXIES" env-default:""`
}

// Durations is the parsed form of SecurityConfig's ISO-8601 periods.
type Durations struct {
	Session       time.Duration
	RememberMe    time.Duration
	Lockout       time.Duration
	AdminLock     time.Duration
	RateWindow    time.Duration
	Challenge     time.Duration
	PasswordReset time.Duration
}

// ParseDurations converts every period, failing on the first malformed value.
func (c SecurityConfig) ParseDurations() (Durations, error) {
	var out Durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"SESSION_DURATION", c.SessionDuration, &out.Session},
		{"REMEMBER_ME_DURATION", c.RememberMeDuration, &out.RememberMe},
		{"LOCKOUT_DURATION", c.LockoutDuration, &out.Lockout},
		{"ADMIN_LOCK_DURATION", c.AdminLockDuration, &out.AdminLock},
		{"RATE_LIMIT_WINDOW", c.RateLimitWindow, &out.RateWindow},
		{"TWO_FA_CHALLENGE_TTL", c.TwoFAChallengeTTL, &out.Challenge},
		{"PASSWORD_RESET_TTL", c.PasswordResetTTL, &out.PasswordReset},
	}
	for _, f := range fields {
		d, err := duration.Parse(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
		*f.dst = d.ToTimeDuration()
		if *f.dst <= 0 {
			return Durations{}, fmt.Errorf("%s must be positive, got %q", f.name, f.value)
		}
	}

	slog.Info("Security policy configuration",
		"session", out.Session,
		"rememberMe", out.RememberMe,
		"lockoutThreshold", c.LockoutThreshold,
		"lockout", out.Lockout,
		"rateLimitAttempts", c.RateLimitAttempts,
		"rateWindow", out.RateWindow,
		"challengeTTL", out.Challenge,
	)
	return out, nil
}

// CookieConfig controls the session and device-ban marker cookies.
type CookieConfig struct {
	SessionCookieName string `env:"SESSION_COOKIE_NAME" env-default:"mytad_session"`
	Secure            bool   `env:"COOKIE_SECURE" env-default:"true"`
	Domain            string `env:"COOKIE_DOMAIN" env-default:""`
}

// Validate checks the policy values that cannot be caught by parsing alone.
func (c SecurityConfig) Validate() error {
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequirePositive("LOCKOUT_THRESHOLD", c.LockoutThreshold),
			RequirePositive("RATE_LIMIT_MAX_ATTEMPTS", c.RateLimitAttempts),
			RequirePositive("PASSWORD_RESET_MAX_PER_HOUR", c.PasswordResetPerIP),
			RequireInRange("BCRYPT_COST", c.BcryptCost, 10, 31),
			RequireNonEmpty("OWNER_USERNAME", c.OwnerUsername),
			OptionalMinLength("CHALLENGE_SIGNING_SECRET", c.ChallengeSecret, 16),
			RequireValidURL("FRONTEND_URL", c.FrontendURL),
			RequirePositive("DEVICE_BAN_COOKIE_DAYS", c.DeviceBanCookieDays),
			RequireCIDRList("TRUSTED_PROXIES", c.TrustedProxies),
		)
	})
}
