package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Uniqueness is delegated to the uq_users_email / uq_users_handle constraints.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// DefaultSchema is the Postgres schema used when WithSchema is not given.
const DefaultSchema = "devtree"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "devtree").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Schema returns the schema this store reads and writes.
func (s *PostgresStore) Schema() string { return s.schema }

const pgUserColumns = `id, handle, name, email, password_hash, description, created_at`

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, "identity.PostgresStore.FindByEmail", "email", NormalizeEmail(email))
}

func (s *PostgresStore) FindByHandle(ctx context.Context, handle string) (User, error) {
	return s.findOne(ctx, "identity.PostgresStore.FindByHandle", "handle", handle)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, "identity.PostgresStore.FindByID", "id", id)
}

// findOne selects by one of the fixed key columns; column is never user input.
func (s *PostgresStore) findOne(ctx context.Context, op, column, value string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(value) == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+`
		   FROM `+users+`
		  WHERE `+pgx.Identifier{column}.Sanitize()+` = $1`,
		value,
	).Scan(&u.ID, &u.Handle, &u.Name, &u.Email, &u.PasswordHash, &u.Description, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// InsertUnique inserts u in a single statement. Concurrent inserts sharing an
// email or handle are serialized by the unique constraints.
func (s *PostgresStore) InsertUnique(ctx context.Context, u User) error {
	const op = "identity.PostgresStore.InsertUnique"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return pgInvalid(op, "missing id")
	}
	if u.PasswordHash == "" {
		return pgInvalid(op, "missing password hash")
	}

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+users+` (`+pgUserColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID,
		u.Handle,
		u.Name,
		NormalizeEmail(u.Email),
		u.PasswordHash,
		u.Description,
		createdAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

// Ping checks that a connection can be acquired and used.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("identity: nil pool")
	}
	return s.pool.Ping(ctx)
}

// ---- helpers ----

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email":
		return FieldEmail, true
	case "uq_users_handle":
		return FieldHandle, true
	case "users_pkey":
		return "id", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return FieldEmail, true
		case strings.Contains(c, "handle"):
			return FieldHandle, true
		default:
			return "unique", true
		}
	}
}

var _ Store = (*PostgresStore)(nil)
