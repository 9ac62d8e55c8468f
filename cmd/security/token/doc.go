// Package token issues and verifies DevTree session tokens.
//
// A session token is an opaque bearer credential. Its payload is the subject
// (the user ID), the issue time and the expiry; validity is a pure function of
// the signed payload, the configured secret and the clock. Nothing is persisted.
//
// The wire format is chosen by Config.Signer:
// - "jwt": HS256 JSON Web Token (default).
// - "paseto": PASETO v4.local; the symmetric key is SHA-256(secret).
// - "securecookie": gorilla/securecookie HMAC-signed value with MaxAge = TTL.
//
// Environment:
// - DEVTREE_JWT_SECRET (required, at least 32 bytes)
// - DEVTREE_TOKEN_TTL (Go duration, default 4320h = 180 days)
// - DEVTREE_TOKEN_ISSUER (default "devtree")
// - DEVTREE_TOKEN_CLOCK_SKEW (default 30s)
// - DEVTREE_TOKEN_SIGNER (jwt|paseto|securecookie)
package token
