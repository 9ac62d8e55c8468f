// Package migrations embeds the goose SQL migrations of the identity stores.
package migrations

import "embed"

// Postgres holds migrations for PostgreSQL. Table names are unqualified; the
// runner sets search_path to the target schema.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds migrations for SQLite.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
