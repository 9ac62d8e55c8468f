package identity

import (
	"context"
	"time"
)

// User is DevTree's canonical account record.
type User struct {
	ID           string
	Handle       string
	Name         string
	Email        string
	PasswordHash string
	Description  string
	CreatedAt    time.Time
}

// PublicProfile is the only shape of a user exposed to anonymous callers.
// It never carries email or password hash.
type PublicProfile struct {
	Handle      string `json:"handle"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PrivateProfile is the authenticated owner's view of their record.
type PrivateProfile struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Description string `json:"description,omitempty"`
}

// Public projects u to its public fields.
func (u User) Public() PublicProfile {
	return PublicProfile{Handle: u.Handle, Name: u.Name, Description: u.Description}
}

// Private projects u for its owner.
func (u User) Private() PrivateProfile {
	return PrivateProfile{
		ID:          u.ID,
		Handle:      u.Handle,
		Name:        u.Name,
		Email:       u.Email,
		Description: u.Description,
	}
}

// Store is the identity persistence boundary.
//
// Lookups return a NotFoundError when no record matches. InsertUnique must be
// atomic with respect to the email and handle unique keys: of two concurrent
// inserts sharing a key exactly one succeeds and the other gets a ConflictError
// whose Field names a violated key.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByHandle(ctx context.Context, handle string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	InsertUnique(ctx context.Context, u User) error
}

// Pinger is implemented by stores backed by a remote or file database.
type Pinger interface {
	Ping(ctx context.Context) error
}
