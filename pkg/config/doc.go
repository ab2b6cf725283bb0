// Package config provides the configuration sections shared by game-auth binaries.
//
// Sections carry cleanenv struct tags and are embedded in the binary's Config struct:
//
//	type Config struct {
//		DatabaseConfig config.DatabaseConfig
//		SecurityConfig config.SecurityConfig
//	}
//	cleanenv.ReadEnv(&cfg)
//
// Security periods are ISO-8601 durations and must be converted with ParseDurations
// before use. The GetEnv* helpers cover ad-hoc lookups outside the tagged sections.
package config
