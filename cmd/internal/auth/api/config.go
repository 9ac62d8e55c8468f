package authapi

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Config controls request handling for the identity routes.
type Config struct {
	// MaxBodyBytes caps every JSON request body.
	MaxBodyBytes int64 `env:"DEVTREE_MAX_BODY_BYTES"`
	// TrustProxy makes X-Forwarded-For / X-Real-IP authoritative for log attribution.
	TrustProxy bool `env:"DEVTREE_TRUST_PROXY"`
}

// DefaultConfig returns the defaults used when no env overrides are present.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: defaultMaxBodyBytes}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("api config: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return cfg, nil
}
