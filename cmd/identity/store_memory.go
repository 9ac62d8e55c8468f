package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Uniqueness is enforced under a single
// mutex so concurrent InsertUnique calls behave like a unique index.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]User
	byEmail  map[string]string
	byHandle map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]User),
		byEmail:  make(map[string]string),
		byHandle: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.MemoryStore.FindByEmail"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByHandle(ctx context.Context, handle string) (User, error) {
	const op = "identity.MemoryStore.FindByHandle"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHandle[handle]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.MemoryStore.FindByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) InsertUnique(ctx context.Context, u User) error {
	const op = "identity.MemoryStore.InsertUnique"
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" || u.PasswordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "id and password hash are required"}
	}
	email := NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return ConflictError{Op: op, Field: FieldEmail}
	}
	if _, taken := s.byHandle[u.Handle]; taken {
		return ConflictError{Op: op, Field: FieldHandle}
	}
	if _, taken := s.byID[u.ID]; taken {
		return ConflictError{Op: op, Field: "id"}
	}

	u.Email = email
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	s.byHandle[u.Handle] = u.ID
	return nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ Store = (*MemoryStore)(nil)
