package app

import (
	"errors"
	"fmt"

	"devtree/cmd/security/password"
	"devtree/cmd/security/token"
)

// ValidateSecurityConfig enforces the token policy at startup.
// A missing or short signing secret is fatal; there is no unsigned fallback.
func ValidateSecurityConfig(cfg Config) error {
	if err := cfg.Token.Validate(); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return errors.New("security policy: DEVTREE_JWT_SECRET is missing")
		case errors.Is(err, token.ErrSecretTooShort):
			return fmt.Errorf("security policy: DEVTREE_JWT_SECRET is too short (min %d bytes)", token.DefaultMinSecretBytes)
		default:
			return fmt.Errorf("security policy: %w", err)
		}
	}
	return nil
}

// newSecurity builds the password hasher and token service from validated config.
func newSecurity(cfg Config) (*password.Hasher, *token.Service, error) {
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, nil, err
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("password hasher: %w", err)
	}
	tokens, err := token.New(cfg.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("token service: %w", err)
	}
	return hasher, tokens, nil
}
