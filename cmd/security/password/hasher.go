package password

import (
	"fmt"
	"strings"
)

// Hasher hashes new passwords with the configured algorithm and verifies digests of
// every supported algorithm. It is safe for concurrent use.
type Hasher struct {
	cfg Config
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Algorithm returns the algorithm used for new digests.
func (h *Hasher) Algorithm() Algorithm { return h.cfg.Algorithm }

// Hash applies the password policy and returns a freshly salted digest.
// Policy violations are reported with ErrPasswordTooShort, ErrPasswordTooLong or
// ErrWeakPassword; any other error is a failure of the hashing primitive.
func (h *Hasher) Hash(plain string) (string, error) {
	if err := h.cfg.Validate(plain); err != nil {
		return "", err
	}

	switch h.cfg.Algorithm {
	case AlgorithmBcrypt:
		return hashBcrypt(h.cfg.BcryptCost, plain)
	case AlgorithmArgon2id:
		return hashArgon2id(h.cfg.Params, plain)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, h.cfg.Algorithm)
	}
}

// Verify reports whether plain produced digest. Unknown or malformed digests yield false.
func (h *Hasher) Verify(plain, digest string) bool {
	switch {
	case strings.HasPrefix(digest, argon2Prefix):
		ok, err := verifyArgon2id(h.cfg.Params, digest, plain)
		return err == nil && ok
	case isBcryptDigest(digest):
		return verifyBcrypt(digest, plain)
	default:
		return false
	}
}
