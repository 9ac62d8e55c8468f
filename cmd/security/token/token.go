package token

import (
	"fmt"
	"strings"
	"time"
)

// Signer turns a subject into a signed token and back.
// Parse must return ErrInvalidToken for every token it does not accept at now.
type Signer interface {
	Sign(subject string, now time.Time) (string, error)
	Parse(token string, now time.Time) (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service issues and verifies session tokens. It is safe for concurrent use.
type Service struct {
	signer Signer
	now    func() time.Time
}

// New validates cfg and builds a Service backed by the configured Signer.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signer, err := NewSigner(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithSigner(signer, opts...), nil
}

// NewWithSigner wraps an already-built Signer.
func NewWithSigner(signer Signer, opts ...Option) *Service {
	s := &Service{signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSigner builds the Signer named by cfg.Signer.
func NewSigner(cfg Config) (Signer, error) {
	switch cfg.Signer {
	case KindJWT, "":
		return NewJWTSigner(cfg), nil
	case KindPaseto:
		return NewPasetoSigner(cfg)
	case KindSecureCookie:
		return NewCookieSigner(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSigner, cfg.Signer)
	}
}

// Issue signs a token for subject.
func (s *Service) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token issue: empty subject")
	}
	tok, err := s.signer.Sign(subject, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("token issue: %w", err)
	}
	return tok, nil
}

// Verify returns the subject of a valid token, or ErrInvalidToken.
func (s *Service) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	sub, err := s.signer.Parse(token, s.now().UTC())
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
