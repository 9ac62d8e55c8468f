package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Kind selects a Signer implementation.
type Kind string

const (
	KindJWT          Kind = "jwt"
	KindPaseto       Kind = "paseto"
	KindSecureCookie Kind = "securecookie"
)

// DefaultMinSecretBytes is the smallest accepted signing secret.
const DefaultMinSecretBytes = 32

// Config defines the runtime configuration of the token service.
type Config struct {
	// Secret signs (and for paseto, encrypts) every token.
	// #nosec G101 -- env var name, not a credential.
	Secret string `env:"DEVTREE_JWT_SECRET"`

	// TTL is the lifetime of an issued token, as a Go duration (default 4320h).
	TTL time.Duration `env:"DEVTREE_TOKEN_TTL"`

	// Issuer is carried in "iss" for jwt and paseto tokens.
	Issuer string `env:"DEVTREE_TOKEN_ISSUER"`

	// ClockSkew is the tolerance applied to time-based claims on verify.
	ClockSkew time.Duration `env:"DEVTREE_TOKEN_CLOCK_SKEW"`

	Signer Kind `env:"DEVTREE_TOKEN_SIGNER"`

	// MinSecretBytes guards against weak secrets. Zero means DefaultMinSecretBytes.
	MinSecretBytes int
}

// DefaultConfig returns the defaults without a secret. The secret has no default.
func DefaultConfig() Config {
	return Config{
		TTL:            180 * 24 * time.Hour,
		Issuer:         "devtree",
		ClockSkew:      30 * time.Second,
		Signer:         KindJWT,
		MinSecretBytes: DefaultMinSecretBytes,
	}
}

// LoadConfigFromEnv overlays DEVTREE_* variables on DefaultConfig and validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem, if any.
func (c Config) Validate() error {
	minBytes := c.MinSecretBytes
	if minBytes <= 0 {
		minBytes = DefaultMinSecretBytes
	}
	if c.Secret == "" {
		return ErrSecretMissing
	}
	if len(c.Secret) < minBytes {
		return fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, minBytes)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	}
	switch c.Signer {
	case KindJWT, KindPaseto, KindSecureCookie:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSigner, c.Signer)
	}
	return nil
}
