package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store over a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations. The store owns the handle; call Close when done.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := MigrateSQLite(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, "identity.SQLiteStore.FindByEmail",
		`SELECT `+pgUserColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
}

func (s *SQLiteStore) FindByHandle(ctx context.Context, handle string) (User, error) {
	return s.findOne(ctx, "identity.SQLiteStore.FindByHandle",
		`SELECT `+pgUserColumns+` FROM users WHERE handle = ?`, handle)
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, "identity.SQLiteStore.FindByID",
		`SELECT `+pgUserColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) findOne(ctx context.Context, op, query, value string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s == nil || s.db == nil {
		return User{}, fmt.Errorf("storage is not configured")
	}

	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, value).
		Scan(&u.ID, &u.Handle, &u.Name, &u.Email, &u.PasswordHash, &u.Description, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (s *SQLiteStore) InsertUnique(ctx context.Context, u User) error {
	const op = "identity.SQLiteStore.InsertUnique"

	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" || u.PasswordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "id and password hash are required"}
	}

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+pgUserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Handle,
		u.Name,
		NormalizeEmail(u.Email),
		u.PasswordHash,
		u.Description,
		toMillis(createdAt),
	)
	if err != nil {
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// sqliteClassifyUniqueViolation maps "UNIQUE constraint failed: users.<col>" to a logical field.
func sqliteClassifyUniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	unique := false
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			unique = true
		}
	}

	message := strings.ToLower(err.Error())
	if !unique && !strings.Contains(message, "unique constraint failed") {
		return "", false
	}
	switch {
	case strings.Contains(message, "users.email"):
		return FieldEmail, true
	case strings.Contains(message, "users.handle"):
		return FieldHandle, true
	case strings.Contains(message, "users.id"):
		return "id", true
	default:
		return "unique", true
	}
}

var _ Store = (*SQLiteStore)(nil)
