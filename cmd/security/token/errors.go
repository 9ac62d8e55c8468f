package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidToken covers bad signatures, malformed tokens, wrong issuers and expiry.
	ErrInvalidToken = errors.New("invalid token")

	ErrSecretMissing  = errors.New("token secret missing")
	ErrSecretTooShort = errors.New("token secret too short")
	ErrUnknownSigner  = errors.New("unknown token signer")
	ErrConfig         = errors.New("invalid token config")
)
