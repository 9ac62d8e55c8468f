// Package password hashes and verifies devtree account passwords.
//
// Two algorithms are supported:
//   - bcrypt (default): canonical 60-character encoding "$2a$<cost>$<salt+digest>".
//   - argon2id: PHC-like encoding "$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>".
//
// New digests are produced with the configured algorithm. Verification dispatches on
// the digest prefix, so accounts hashed under a previous configuration keep working.
// Digests are treated as untrusted input during verification: malformed values and
// argon2id parameters far above the configured limits are rejected without panicking.
package password
