package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtree/cmd/internal/app"
	"devtree/cmd/security/token"
)

func setTestEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "devtree.db")
	t.Setenv("DEVTREE_JWT_SECRET", strings.Repeat("k", 32))
	t.Setenv("DEVTREE_BCRYPT_COST", "4")
	t.Setenv("DEVTREE_STORE", "sqlite")
	t.Setenv("DEVTREE_SQLITE_PATH", dbPath)
	t.Setenv("DEVTREE_DATABASE_URL", "")
	return dbPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate_SQLite(t *testing.T) {
	setTestEnv(t)

	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrations applied: sqlite\n", out)
}

func TestUserCreate(t *testing.T) {
	setTestEnv(t)
	args := []string{"user", "create", "--handle", "Ana", "--name", "Ana", "--email", "ana@example.com", "--password-stdin"}

	out, err := run(t, "password123\n", args...)
	require.NoError(t, err)
	assert.Contains(t, out, "created user Ana (")

	// Same email on the same sqlite file.
	_, err = run(t, "password123\n", args...)
	require.Error(t, err)
}

func TestUserCreate_ValidationErrorsAreReadable(t *testing.T) {
	setTestEnv(t)

	_, err := run(t, "short\n", "user", "create", "--handle", "ana", "--name", "Ana", "--email", "not-an-email", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user:")
	assert.Contains(t, err.Error(), "email:")
}

func TestUserCreate_RequiresPasswordSource(t *testing.T) {
	setTestEnv(t)

	_, err := run(t, "", "user", "create", "--handle", "ana", "--name", "Ana", "--email", "ana@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password-stdin")
}

func TestUserCreate_RequiredFlags(t *testing.T) {
	setTestEnv(t)

	_, err := run(t, "password123\n", "user", "create", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handle")
}

func TestTokenVerify(t *testing.T) {
	setTestEnv(t)

	cfg, err := token.LoadConfigFromEnv()
	require.NoError(t, err)
	svc, err := token.New(cfg)
	require.NoError(t, err)
	tok, err := svc.Issue("user-123")
	require.NoError(t, err)

	out, err := run(t, "", "token", "verify", tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123\n", out)

	_, err = run(t, "", "token", "verify", tok+"x")
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = run(t, "", "token", "verify")
	require.Error(t, err)
}

func TestTokenVerify_SecretMissing(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DEVTREE_JWT_SECRET", "")

	_, err := run(t, "", "token", "verify", "anything")
	require.ErrorIs(t, err, token.ErrSecretMissing)
}

func TestStoreFlagsOverrideEnv(t *testing.T) {
	setTestEnv(t)

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--store", "postgres", "--database-url", "postgres://x@db/devtree"}))

	cfg, err := app.ParseConfig()
	require.NoError(t, err)
	var sf storeFlags
	sf.store, _ = cmd.Flags().GetString("store")
	sf.databaseURL, _ = cmd.Flags().GetString("database-url")
	sf.apply(cmd, &cfg)

	assert.Equal(t, app.StorePostgres, cfg.Store)
	assert.Equal(t, "postgres://x@db/devtree", cfg.DatabaseURL)
	// Untouched flags leave env values alone.
	assert.True(t, strings.HasSuffix(cfg.SQLitePath, "devtree.db"))
}
