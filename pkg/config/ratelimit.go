package config

// RateLimitConfig contains the in-process request throttle settings.
// Rates are tokens per second; the login bucket applies per IP to the login endpoint.
type RateLimitConfig struct {
	GlobalEnabled    bool    `env:"RATELIMIT_GLOBAL_ENABLED" env-default:"true"`
	GlobalCapacity   int     `env:"RATELIMIT_GLOBAL_CAPACITY" env-default:"1000"`
	GlobalRefillRate float64 `env:"RATELIMIT_GLOBAL_REFILL_RATE" env-default:"16.67"`

	PerIPEnabled    bool    `env:"RATELIMIT_PER_IP_ENABLED" env-default:"true"`
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67"`

	LoginCapacity   int     `env:"RATELIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginRefillRate float64 `env:"RATELIMIT_LOGIN_REFILL_RATE" env-default:"0.167"`
}

// DefaultRateLimitConfig mirrors the env defaults for callers that build config by hand.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalEnabled:    true,
		GlobalCapacity:   1000,
		GlobalRefillRate: 16.67,
		PerIPEnabled:     true,
		PerIPCapacity:    100,
		PerIPRefillRate:  1.67,
		LoginCapacity:    10,
		LoginRefillRate:  0.167,
	}
}
