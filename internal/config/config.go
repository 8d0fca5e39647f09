// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SKIPPER"

// Config is the full runtime configuration. Every field maps to a
// SKIPPER_-prefixed environment variable.
type Config struct {
	// Port the HTTP server listens on.
	Port int
	// RedisURL reaches both the browser fleet and the redis store.
	RedisURL string
	// Store selects the persistence backend: "memory" or "redis".
	Store string
	// StoreTTL bounds how long redis-backed records live.
	StoreTTL time.Duration
	// ProviderAPIKey authenticates against the browser fleet. Required:
	// without it no session can ever be created, so startup fails fast.
	ProviderAPIKey string
	// GHLLoginURL overrides the GoHighLevel console URL, mainly for
	// pointing tests at a stub.
	GHLLoginURL string
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("store", "memory")
	v.SetDefault("store_ttl", "24h")
	v.SetDefault("ghl_login_url", "")

	cfg := &Config{
		Port:           v.GetInt("port"),
		RedisURL:       v.GetString("redis_url"),
		Store:          v.GetString("store"),
		StoreTTL:       v.GetDuration("store_ttl"),
		ProviderAPIKey: v.GetString("provider_api_key"),
		GHLLoginURL:    v.GetString("ghl_login_url"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ProviderAPIKey == "" {
		return errors.New("SKIPPER_PROVIDER_API_KEY is required")
	}
	switch c.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want memory or redis)", c.Store)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
