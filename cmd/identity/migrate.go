package identity

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"devtree/cmd/identity/migrations"
)

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// MigratePostgres creates schema if needed and applies the embedded Postgres migrations inside it.
// The goose version table lives in the same schema.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	const op = "identity.MigratePostgres"

	if pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	schema = strings.TrimSpace(schema)
	if !pgIdentIsValid(schema) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid schema identifier"}
	}

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("%s: create schema: %w", op, err)
	}

	connCfg := pool.Config().ConnConfig.Copy()
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	connCfg.RuntimeParams["search_path"] = schema

	db := stdlib.OpenDB(*connCfg)
	defer func() { _ = db.Close() }()

	sub, err := fs.Sub(migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := runGoose(ctx, db, "pgx", sub, log); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MigrateSQLite applies the embedded SQLite migrations to db.
func MigrateSQLite(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	sub, err := fs.Sub(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("identity.MigrateSQLite: %w", err)
	}
	if err := runGoose(ctx, db, "sqlite3", sub, log); err != nil {
		return fmt.Errorf("identity.MigrateSQLite: %w", err)
	}
	return nil
}

func runGoose(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, log *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{log: orDiscard(log)})

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// gooseLogger routes goose output through slog.
type gooseLogger struct{ log *slog.Logger }

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return log
}
