package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoUser is the persisted document shape.
type mongoUser struct {
	ID           string    `bson:"_id"`
	Handle       string    `bson:"handle"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	Description  string    `bson:"description,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (d mongoUser) user() User {
	return User{
		ID:           d.ID,
		Handle:       d.Handle,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Description:  d.Description,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

const (
	mongoUsersCollection = "users"
	mongoEmailIndex      = "uq_users_email"
	mongoHandleIndex     = "uq_users_handle"
)

// MongoStore implements Store over a MongoDB collection with unique indexes on
// email and handle.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

// OpenMongo connects to uri and returns a store over database. The store owns
// the client; Close disconnects it.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" || strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	st, err := NewMongoStore(ctx, client.Database(database))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	st.owned = true
	return st, nil
}

// NewMongoStore uses db's "users" collection and ensures the unique indexes exist.
// The caller keeps ownership of the client.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil mongo database")
	}
	coll := db.Collection(mongoUsersCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(mongoEmailIndex),
		},
		{
			Keys:    bson.D{{Key: "handle", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(mongoHandleIndex),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create mongo indexes: %w", err)
	}
	return &MongoStore{client: db.Client(), coll: coll}, nil
}

// Close disconnects the client when the store owns it.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || !s.owned || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, "identity.MongoStore.FindByEmail", bson.M{"email": NormalizeEmail(email)})
}

func (s *MongoStore) FindByHandle(ctx context.Context, handle string) (User, error) {
	return s.findOne(ctx, "identity.MongoStore.FindByHandle", bson.M{"handle": handle})
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, "identity.MongoStore.FindByID", bson.M{"_id": id})
}

func (s *MongoStore) findOne(ctx context.Context, op string, filter bson.M) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	var doc mongoUser
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.user(), nil
}

func (s *MongoStore) InsertUnique(ctx context.Context, u User) error {
	const op = "identity.MongoStore.InsertUnique"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" || u.PasswordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "id and password hash are required"}
	}

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.coll.InsertOne(ctx, mongoUser{
		ID:           u.ID,
		Handle:       u.Handle,
		Name:         u.Name,
		Email:        NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Description:  u.Description,
		CreatedAt:    createdAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ConflictError{Op: op, Field: mongoDuplicateField(err)}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// mongoDuplicateField reads the violated index name out of an E11000 error.
func mongoDuplicateField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, mongoEmailIndex):
		return FieldEmail
	case strings.Contains(msg, mongoHandleIndex):
		return FieldHandle
	case strings.Contains(msg, "_id_"):
		return "id"
	default:
		return "unique"
	}
}

var _ Store = (*MongoStore)(nil)
