package config

import (
	"fmt"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"GAME_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"GAME_PG_PORT" env-default:"5432"`
	Database string `env:"GAME_PG_DATABASE" env-default:"gameauth_db"`
	User     string `env:"GAME_PG_USER" env-default:"gameauth"`
	Password string `env:"GAME_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"GAME_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// RedisConfig points at the Redis instance that holds short-lived 2FA state and attempt counters.
// An empty URL selects the in-process stores, which are only correct for a single instance.
type RedisConfig struct {
	URL string `env:"REDIS_URL" env-default:""`
}

// Enabled reports whether a Redis endpoint is configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}
