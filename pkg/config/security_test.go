package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		SessionDuration:    "PT24H",
		RememberMeDuration: "P30D",
		LockoutThreshold:   5,
		LockoutDuration:    "PT30M",
		AdminLockDuration:  "PT24H",
		RateLimitAttempts:  5,
		RateLimitWindow:    "PT15M",
		TwoFAChallengeTTL:  "PT10M",
		PasswordResetTTL:   "PT1H",
	}
}

func TestParseDurations(t *testing.T) {
	d, err := defaultSecurityConfig().ParseDurations()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, d.Session)
	assert.Equal(t, 30*24*time.Hour, d.RememberMe)
	assert.Equal(t, 30*time.Minute, d.Lockout)
	assert.Equal(t, 15*time.Minute, d.RateWindow)
	assert.Equal(t, 10*time.Minute, d.Challenge)
	assert.Equal(t, time.Hour, d.PasswordReset)
}

func TestParseDurations_Invalid(t *testing.T) {
	cfg := defaultSecurityConfig()
	cfg.LockoutDuration = "thirty minutes"

	_, err := cfg.ParseDurations()
	assert.ErrorContains(t, err, "LOCKOUT_DURATION")

	cfg = defaultSecurityConfig()
	cfg.TwoFAChallengeTTL = "PT0M"
	_, err = cfg.ParseDurations()
	assert.ErrorContains(t, err, "must be positive")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GAMEAUTH_TEST_INT", "42")
	t.Setenv("GAMEAUTH_TEST_BOOL", "Yes")
	t.Setenv("GAMEAUTH_TEST_DURATION", "90s")

	assert.Equal(t, 42, GetEnvInt("GAMEAUTH_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("GAMEAUTH_TEST_MISSING", 1))
	assert.True(t, GetEnvBool("GAMEAUTH_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("GAMEAUTH_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", GetEnvOrDefault("GAMEAUTH_TEST_MISSING", "fallback"))
}

func TestDatabaseConfigURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Database: "gameauth_db", User: "u", Password: "p", Schema: "auth"}
	assert.Equal(t, "postgres://u:p@db:5433/gameauth_db?sslmode=disable&search_path=auth,public", d.ToDatabaseURL())
}

func TestSecurityConfigValidate(t *testing.T) {
	cfg := defaultSecurityConfig()
	cfg.PasswordResetPerIP = 3
	cfg.BcryptCost = 12
	cfg.OwnerUsername = "thatoneamiho"
	cfg.ChallengeSecret = "0123456789abcdef-secret"
	cfg.FrontendURL = "https://play.example.com"
	cfg.DeviceBanCookieDays = 30
	require.NoError(t, cfg.Validate())

	cfg.BcryptCost = 4
	cfg.ChallengeSecret = "short"
	cfg.FrontendURL = "play.example.com"
	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.Contains(t, err.Error(), "BCRYPT_COST")
	assert.Contains(t, err.Error(), "CHALLENGE_SIGNING_SECRET")
	assert.Contains(t, err.Error(), "FRONTEND_URL")
}

func TestSecurityConfigValidate_OptionalSecretAndProxies(t *testing.T) {
	cfg := defaultSecurityConfig()
	cfg.PasswordResetPerIP = 3
	cfg.BcryptCost = 12
	cfg.OwnerUsername = "thatoneamiho"
	cfg.FrontendURL = "https://play.example.com"
	cfg.DeviceBanCookieDays = 30

	// unset secret falls back to the generated secret file
	cfg.ChallengeSecret = ""
	cfg.TrustedProxies = "10.0.0.0/8, 192.0.2.1"
	require.NoError(t, cfg.Validate())

	cfg.TrustedProxies = "10.0.0.0/33,nonsense"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}

func TestParseCIDRList(t *testing.T) {
	prefixes, err := ParseCIDRList(" 10.1.2.3/8 ,192.0.2.1,,2001:db8::/32")
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "2001:db8::/32", prefixes[2].String())

	prefixes, err = ParseCIDRList("")
	require.NoError(t, err)
	assert.Empty(t, prefixes)

	_, err = ParseCIDRList("not-an-ip")
	assert.Error(t, err)
}
