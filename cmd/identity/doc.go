// Package identity implements DevTree's identity core.
//
// It owns the User record and its public/private projections, the Store
// persistence boundary (memory, PostgreSQL, SQLite and MongoDB backends), and
// the Service that orchestrates registration, authentication, handle lookup,
// handle availability and current-user resolution.
//
// Uniqueness of email and handle is enforced by the store at write time; the
// service never relies on check-then-write alone.
package identity
