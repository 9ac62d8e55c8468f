package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a supported password hashing scheme.
type Algorithm string

const (
	// AlgorithmBcrypt produces 60-character "$2a$" digests.
	AlgorithmBcrypt Algorithm = "bcrypt"
	// AlgorithmArgon2id produces PHC-like "$argon2id$" digests.
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"DEVTREE_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"DEVTREE_ARGON2_ITERATIONS"`
	Parallelism uint8  `env:"DEVTREE_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"DEVTREE_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"DEVTREE_ARGON2_KEY_LEN"`
}

// Policy controls password validation and anti-DoS boundaries.
// MinLength counts characters; MaxLength counts bytes (bcrypt reads at most 72).
type Policy struct {
	MinLength int `env:"DEVTREE_PASSWORD_MIN_LEN"`
	MaxLength int `env:"DEVTREE_PASSWORD_MAX_LEN"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"DEVTREE_PASSWORD_REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Algorithm  Algorithm `env:"DEVTREE_PASSWORD_ALGO"`
	BcryptCost int       `env:"DEVTREE_BCRYPT_COST"`
	Params     Argon2idParams
	Policy     Policy
}

// DefaultConfig returns the production baseline: bcrypt at the library default cost,
// argon2id parameters ready for operators who switch algorithms.
func DefaultConfig() Config {
	// CPU-aware parallelism, clamped to [1..4] to keep container usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: bcrypt.DefaultCost,
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      72,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - DEVTREE_PASSWORD_ALGO (bcrypt|argon2id)
// - DEVTREE_BCRYPT_COST
// - DEVTREE_PASSWORD_MIN_LEN
// - DEVTREE_PASSWORD_MAX_LEN
// - DEVTREE_PASSWORD_REJECT_VERY_WEAK (true/false)
// - DEVTREE_ARGON2_MEMORY_KIB
// - DEVTREE_ARGON2_ITERATIONS
// - DEVTREE_ARGON2_PARALLELISM
// - DEVTREE_ARGON2_SALT_LEN
// - DEVTREE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates ranges after defaults and overrides are merged.
func (c Config) Check() error {
	switch c.Algorithm {
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		return fmt.Errorf("DEVTREE_PASSWORD_ALGO: %w: %q", ErrUnsupportedAlgorithm, c.Algorithm)
	}

	checks := []struct {
		name     string
		val      int64
		min, max int64
	}{
		{"DEVTREE_BCRYPT_COST", int64(c.BcryptCost), int64(bcrypt.MinCost), int64(bcrypt.MaxCost)},
		{"DEVTREE_PASSWORD_MIN_LEN", int64(c.Policy.MinLength), 1, 1024},
		{"DEVTREE_PASSWORD_MAX_LEN", int64(c.Policy.MaxLength), 1, 4096},
		{"DEVTREE_ARGON2_MEMORY_KIB", int64(c.Params.MemoryKiB), 8 * 1024, 1024 * 1024},
		{"DEVTREE_ARGON2_ITERATIONS", int64(c.Params.Iterations), 1, 20},
		{"DEVTREE_ARGON2_PARALLELISM", int64(c.Params.Parallelism), 1, 64},
		{"DEVTREE_ARGON2_SALT_LEN", int64(c.Params.SaltLength), 8, 64},
		{"DEVTREE_ARGON2_KEY_LEN", int64(c.Params.KeyLength), 16, 64},
	}
	for _, ck := range checks {
		if ck.val < ck.min || ck.val > ck.max {
			return fmt.Errorf("%s: out of range [%d..%d]", ck.name, ck.min, ck.max)
		}
	}

	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	if c.Algorithm == AlgorithmBcrypt && c.Policy.MaxLength > 72 {
		return fmt.Errorf("password policy invalid: bcrypt accepts at most 72 bytes, max_len=%d", c.Policy.MaxLength)
	}
	return nil
}
