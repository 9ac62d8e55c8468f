package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "devtree.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return openTestSQLite(t) })
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtree.db")
	ctx := context.Background()

	st, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	u := contractUser(t, "ana", "ana@example.com")
	require.NoError(t, st.InsertUnique(ctx, u))
	require.NoError(t, st.Close())

	// Migrations are idempotent on reopen.
	st, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Handle)
	assert.NoError(t, st.Ping(ctx))
}

func TestSQLiteStore_ServiceEndToEnd(t *testing.T) {
	svc := newTestService(t, openTestSQLite(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Email = "other@example.com"
	_, err = svc.Register(ctx, again)
	assert.True(t, IsHandleTaken(err), "got %v", err)

	p, err := svc.LookupByHandle(ctx, "testuser")
	require.NoError(t, err)
	assert.Equal(t, "Test User", p.Name)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ", nil)
	assert.Error(t, err)
}

func TestSQLiteClassifyUniqueViolation_Message(t *testing.T) {
	field, ok := sqliteClassifyUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.handle (2067)"))
	assert.True(t, ok)
	assert.Equal(t, FieldHandle, field)

	_, ok = sqliteClassifyUniqueViolation(errors.New("disk I/O error"))
	assert.False(t, ok)
}
