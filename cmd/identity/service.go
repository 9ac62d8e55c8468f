package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"devtree/cmd/security/password"
)

// PasswordHasher turns passwords into digests and checks them.
// Verify must return false, never panic, on malformed digests.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// TokenIssuer issues and verifies session tokens whose subject is a user ID.
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

// RegisterInput is a registration request as received from the caller.
type RegisterInput struct {
	Handle   string
	Name     string
	Email    string
	Password string
}

func (in RegisterInput) normalized() RegisterInput {
	return RegisterInput{
		Handle:   NormalizeHandle(in.Handle),
		Name:     NormalizeName(in.Name),
		Email:    NormalizeEmail(in.Email),
		Password: in.Password,
	}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTracer overrides the tracer (default: the global provider's "devtree/identity").
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source used for CreatedAt and ULIDs.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReservedHandles replaces DefaultReservedHandles. Matching is case-insensitive.
func WithReservedHandles(handles ...string) ServiceOption {
	return func(s *Service) {
		s.reserved = reservedSet(handles)
	}
}

// WithMinPasswordLength sets the registration minimum, counted in characters.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minPassword = n
		}
	}
}

// Service orchestrates the identity operations. It holds no mutable state of its
// own and is safe for concurrent use.
type Service struct {
	store  Store
	hasher PasswordHasher
	tokens TokenIssuer

	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	reserved    map[string]struct{}
	minPassword int
}

// NewService wires a Service. store, hasher and tokens are required.
func NewService(store Store, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, errors.New("identity: store, hasher and token issuer are required")
	}

	s := &Service{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:      otel.Tracer("devtree/identity"),
		now:         time.Now,
		reserved:    reservedSet(DefaultReservedHandles),
		minPassword: 8,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func reservedSet(handles []string) map[string]struct{} {
	out := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// Register creates a new account.
//
// Errors: ValidationError (bad input), ConflictError with FieldEmail (email already
// registered) or FieldHandle (handle taken). Anything else is an internal failure.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ User, err error) {
	const op = "identity.Register"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	in = in.normalized()
	if err := s.validateRegister(op, in); err != nil {
		return User{}, err
	}
	span.SetAttributes(attribute.String("devtree.handle", in.Handle))

	// Fast path for the common duplicate; the store's unique keys stay authoritative.
	if _, err := s.store.FindByEmail(ctx, in.Email); err == nil {
		return User{}, ConflictError{Op: op, Field: FieldEmail}
	} else if !IsNotFound(err) {
		return User{}, fmt.Errorf("%s: find by email: %w", op, err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		if password.IsPolicyError(err) {
			return User{}, ValidationError{Op: op, Fields: []FieldError{{Field: FieldPassword, Msg: msgPasswordRejected}}}
		}
		return User{}, fmt.Errorf("%s: hash password: %w", op, err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	id, err := NewULID(now)
	if err != nil {
		return User{}, fmt.Errorf("%s: ulid: %w", op, err)
	}

	u := User{
		ID:           id,
		Handle:       in.Handle,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: digest,
		CreatedAt:    now,
	}
	if err := s.store.InsertUnique(ctx, u); err != nil {
		var ce ConflictError
		if errors.As(err, &ce) {
			return User{}, ConflictError{Op: op, Field: ce.Field}
		}
		return User{}, fmt.Errorf("%s: insert: %w", op, err)
	}

	s.log.InfoContext(ctx, "identity.register.ok", "user_id", u.ID, "handle", u.Handle)
	return u, nil
}

// Authenticate checks credentials and issues a session token for the user ID.
//
// Errors: ValidationError, NotFoundError (no account for email),
// ErrInvalidCredentials (wrong password).
func (s *Service) Authenticate(ctx context.Context, email, plain string) (_ string, err error) {
	const op = "identity.Authenticate"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	email = NormalizeEmail(email)
	if err := validateLogin(op, email, plain); err != nil {
		return "", err
	}

	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return "", NotFoundError{Op: op, Resource: "user"}
		}
		return "", fmt.Errorf("%s: find by email: %w", op, err)
	}

	if !s.hasher.Verify(plain, u.PasswordHash) {
		return "", OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", fmt.Errorf("%s: issue token: %w", op, err)
	}

	span.SetAttributes(attribute.String("devtree.user_id", u.ID))
	return tok, nil
}

// LookupByHandle returns the public projection of the user owning handle.
func (s *Service) LookupByHandle(ctx context.Context, handle string) (_ PublicProfile, err error) {
	const op = "identity.LookupByHandle"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return PublicProfile{}, err
	}

	handle = NormalizeHandle(handle)
	if handle == "" {
		return PublicProfile{}, NotFoundError{Op: op, Resource: "user"}
	}

	u, err := s.store.FindByHandle(ctx, handle)
	if err != nil {
		if IsNotFound(err) {
			return PublicProfile{}, NotFoundError{Op: op, Resource: "user"}
		}
		return PublicProfile{}, fmt.Errorf("%s: find by handle: %w", op, err)
	}
	return u.Public(), nil
}

// CheckHandleAvailability reports whether handle could be registered right now.
// It never writes. Reserved handles are never available; handles that could
// never be registered fail validation.
func (s *Service) CheckHandleAvailability(ctx context.Context, handle string) (_ bool, err error) {
	const op = "identity.CheckHandleAvailability"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	handle = NormalizeHandle(handle)
	if err := validateSearch(op, handle); err != nil {
		return false, err
	}
	if s.isReserved(handle) {
		return false, nil
	}

	_, err = s.store.FindByHandle(ctx, handle)
	switch {
	case err == nil:
		return false, nil
	case IsNotFound(err):
		return true, nil
	default:
		return false, fmt.Errorf("%s: find by handle: %w", op, err)
	}
}

// CurrentUser resolves a bearer token to its owner's private projection.
//
// Errors: ErrInvalidToken (bad, expired or foreign token), NotFoundError (the
// token is valid but its user no longer exists).
func (s *Service) CurrentUser(ctx context.Context, token string) (_ PrivateProfile, err error) {
	const op = "identity.CurrentUser"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return PrivateProfile{}, err
	}

	sub, err := s.tokens.Verify(token)
	if err != nil || sub == "" {
		return PrivateProfile{}, OpError{Op: op, Kind: ErrInvalidToken}
	}

	u, err := s.store.FindByID(ctx, sub)
	if err != nil {
		if IsNotFound(err) {
			return PrivateProfile{}, NotFoundError{Op: op, Resource: "user"}
		}
		return PrivateProfile{}, fmt.Errorf("%s: find by id: %w", op, err)
	}
	return u.Private(), nil
}

// endSpan marks only unexpected failures as span errors.
func endSpan(span trace.Span, err error) {
	if err != nil && !isDomainError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
