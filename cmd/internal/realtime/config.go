package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the live search gateway.
type Config struct {
	// AllowedOrigins mirrors the CORS whitelist (full origins or bare hosts, "*" allows any).
	AllowedOrigins []string `env:"DEVTREE_FRONTEND_URL" envSeparator:","`
	// OriginRequired rejects upgrades that carry no Origin header.
	OriginRequired bool `env:"DEVTREE_WS_ORIGIN_REQUIRED"`
	// DevInsecure disables the library origin check. Never enable in production.
	DevInsecure bool `env:"DEVTREE_WS_DEV_INSECURE"`

	WriteTimeout      time.Duration `env:"DEVTREE_WS_WRITE_TIMEOUT"`
	ReadIdleTimeout   time.Duration `env:"DEVTREE_WS_READ_IDLE_TIMEOUT"`
	HeartbeatInterval time.Duration `env:"DEVTREE_WS_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `env:"DEVTREE_WS_HEARTBEAT_TIMEOUT"`

	MaxBadFrames int `env:"DEVTREE_WS_MAX_BAD_FRAMES"`
}

// DefaultConfig returns gateway defaults: no origin allowlist, origin optional.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:      wsDefaultWriteTimeout,
		ReadIdleTimeout:   wsDefaultReadIdle,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		MaxBadFrames:      maxBadFrames,
	}
}

// LoadConfigFromEnv loads gateway config on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("realtime config: %w", err)
	}
	return cfg.normalized(), nil
}

// normalized replaces non-positive knobs with defaults and trims the allowlist.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.MaxBadFrames <= 0 {
		c.MaxBadFrames = def.MaxBadFrames
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	c.AllowedOrigins = origins
	return c
}
