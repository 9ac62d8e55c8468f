package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"devtree/cmd/security/password"
	"devtree/cmd/security/token"
)

type fakeTokens struct{}

func (fakeTokens) Issue(string) (string, error) { return "test-token", nil }

func (fakeTokens) Verify(tok string) (string, error) {
	if tok == "valid-token" {
		return "valid-user-id", nil
	}
	return "", errors.New("invalid token")
}

type failingStore struct{ *MemoryStore }

func (failingStore) FindByEmail(context.Context, string) (User, error) {
	return User{}, errors.New("connection reset")
}

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	cfg := password.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	h, err := password.NewHasher(cfg)
	require.NoError(t, err)
	return h
}

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, testHasher(t), fakeTokens{}, opts...)
	require.NoError(t, err)
	return svc
}

func validInput() RegisterInput {
	return RegisterInput{
		Handle:   "testuser",
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}
}

func TestRegister_Created(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "testuser", u.Handle)
	assert.Equal(t, "test@example.com", u.Email)
	assert.Len(t, u.ID, 26)
	assert.Len(t, u.PasswordHash, password.BcryptDigestLength)
	assert.NotEqual(t, "password123", u.PasswordHash)

	stored, err := store.FindByHandle(context.Background(), "testuser")
	require.NoError(t, err)
	assert.Equal(t, u, stored)
}

func TestRegister_NormalizesEmailAndHandle(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)

	in := validInput()
	in.Email = "  Test@Example.COM "
	in.Handle = "  café "

	u, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", u.Email)
	assert.Equal(t, "café", u.Handle)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Handle = "otherhandle"
	again.Email = "TEST@example.com"
	_, err = svc.Register(ctx, again)

	require.Error(t, err)
	assert.True(t, IsDuplicateEmail(err), "got %v", err)
	assert.False(t, IsHandleTaken(err))
}

func TestRegister_DuplicateHandle(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Email = "other@example.com"
	_, err = svc.Register(ctx, again)

	require.Error(t, err)
	assert.True(t, IsHandleTaken(err), "got %v", err)
}

func TestRegister_HandleIsCaseSensitive(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Email = "other@example.com"
	again.Handle = "TestUser"
	_, err = svc.Register(ctx, again)
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	_, err := svc.Register(context.Background(), RegisterInput{
		Handle:   " ",
		Name:     "",
		Email:    "not-an-email",
		Password: "short",
	})
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))

	ve, ok := AsValidation(err)
	require.True(t, ok)

	got := map[string]string{}
	for _, f := range ve.Fields {
		got[f.Field] = f.Msg
	}
	assert.Equal(t, map[string]string{
		FieldHandle:   "El handle no puede ir vacio",
		FieldName:     "El Nombre no puede ir vacio",
		FieldEmail:    "E-mail no válido",
		FieldPassword: "El Password es muy corto, minimo 8 caracteres",
	}, got)
}

func TestRegister_ReservedAndMalformedHandles(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	for _, handle := range []string{"auth", "Search", "metrics", "a/b", "two words", ".", "..", "..."} {
		in := validInput()
		in.Handle = handle
		_, err := svc.Register(context.Background(), in)
		assert.True(t, IsInvalidInput(err), "%q: got %v", handle, err)
	}
}

func TestRegister_PasswordTooLongForHasher(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	in := validInput()
	in.Password = strings.Repeat("x", 100)
	_, err := svc.Register(context.Background(), in)

	require.Error(t, err)
	ve, ok := AsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, FieldPassword, ve.Fields[0].Field)
}

func TestRegister_StoreFailureIsInternal(t *testing.T) {
	svc := newTestService(t, failingStore{NewMemoryStore()})

	_, err := svc.Register(context.Background(), validInput())
	require.Error(t, err)
	assert.False(t, isDomainError(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := validInput()
			in.Handle = fmt.Sprintf("user%d", i)
			_, err := svc.Register(context.Background(), in)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsDuplicateEmail(err):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, 1, store.Len())
}

func TestRegister_ConcurrentSameHandle(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := validInput()
			in.Email = fmt.Sprintf("user%d@example.com", i)
			_, errs[i] = svc.Register(context.Background(), in)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, IsHandleTaken(err), "got %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	tok, err := svc.Authenticate(ctx, "Test@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)

	_, err = svc.Authenticate(ctx, "test@example.com", "wrongpassword")
	assert.True(t, IsInvalidCredentials(err), "got %v", err)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "password123")
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = svc.Authenticate(ctx, "nope", "")
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 2)
}

func TestAuthenticate_MalformedStoredDigest(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.InsertUnique(context.Background(), User{
		ID:           "01J9ZK4Y1W3B6Q8R2T5V7X9A0C",
		Handle:       "broken",
		Email:        "broken@example.com",
		PasswordHash: "not-a-digest",
	}))
	svc := newTestService(t, store)

	_, err := svc.Authenticate(context.Background(), "broken@example.com", "password123")
	assert.True(t, IsInvalidCredentials(err), "got %v", err)
}

func TestLookupByHandle_PublicProjection(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.InsertUnique(context.Background(), User{
		ID:           "01J9ZK4Y1W3B6Q8R2T5V7X9A0C",
		Handle:       "ana",
		Name:         "Ana",
		Email:        "ana@example.com",
		PasswordHash: "$2a$04$xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx",
		Description:  "Frontend dev",
	}))
	svc := newTestService(t, store)

	p, err := svc.LookupByHandle(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, PublicProfile{Handle: "ana", Name: "Ana", Description: "Frontend dev"}, p)

	_, err = svc.LookupByHandle(context.Background(), "Ana")
	assert.True(t, IsNotFound(err))

	_, err = svc.LookupByHandle(context.Background(), "")
	assert.True(t, IsNotFound(err))
}

func TestCheckHandleAvailability(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	ok, err := svc.CheckHandleAvailability(ctx, "testuser")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Register(ctx, validInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err = svc.CheckHandleAvailability(ctx, "testuser")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, store.Len())

	ok, err = svc.CheckHandleAvailability(ctx, "search")
	require.NoError(t, err)
	assert.False(t, ok, "reserved handles are never available")

	_, err = svc.CheckHandleAvailability(ctx, "  ")
	assert.True(t, IsInvalidInput(err))
}

func TestCheckHandleAvailability_UnregistrableHandles(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	for _, handle := range []string{"two words", "a/b", ".", "..", strings.Repeat("a", maxHandleRunes+1)} {
		ok, err := svc.CheckHandleAvailability(context.Background(), handle)
		require.Error(t, err, "%q", handle)
		assert.False(t, ok)
		ve, isValidation := AsValidation(err)
		require.True(t, isValidation, "%q: got %v", handle, err)
		assert.Equal(t, FieldHandle, ve.Fields[0].Field)
	}

	// Dots inside a handle are fine.
	ok, err := svc.CheckHandleAvailability(context.Background(), "ana.dev")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCurrentUser(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.InsertUnique(context.Background(), User{
		ID:           "valid-user-id",
		Handle:       "ana",
		Name:         "Ana",
		Email:        "ana@example.com",
		PasswordHash: "digest",
	}))
	svc := newTestService(t, store)

	p, err := svc.CurrentUser(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, PrivateProfile{ID: "valid-user-id", Handle: "ana", Name: "Ana", Email: "ana@example.com"}, p)

	_, err = svc.CurrentUser(context.Background(), "forged")
	assert.True(t, IsInvalidToken(err), "got %v", err)
}

func TestCurrentUser_UserGone(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	_, err := svc.CurrentUser(context.Background(), "valid-token")
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestEndToEnd_WithRealTokens(t *testing.T) {
	cfg := token.DefaultConfig()
	cfg.Secret = strings.Repeat("k", 32)
	tokens, err := token.New(cfg)
	require.NoError(t, err)

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(NewMemoryStore(), testHasher(t), tokens, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	ctx := context.Background()

	u, err := svc.Register(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, fixed, u.CreatedAt)

	p, err := svc.LookupByHandle(ctx, "testuser")
	require.NoError(t, err)
	assert.Equal(t, "testuser", p.Handle)

	tok, err := svc.Authenticate(ctx, "test@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	me, err := svc.CurrentUser(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
	assert.Equal(t, "test@example.com", me.Email)

	_, err = svc.Authenticate(ctx, "test@example.com", "wrong-password")
	assert.True(t, IsInvalidCredentials(err))
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, testHasher(t), fakeTokens{})
	assert.Error(t, err)
}

func TestService_CanceledContext(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Register(ctx, validInput())
	assert.ErrorIs(t, err, context.Canceled)
}
