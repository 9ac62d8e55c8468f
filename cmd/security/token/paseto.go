package token

import (
	"crypto/sha256"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// PasetoSigner produces PASETO v4.local tokens.
type PasetoSigner struct {
	key    paseto.V4SymmetricKey
	issuer string
	ttl    time.Duration
	skew   time.Duration
}

// NewPasetoSigner derives the v4.local key as SHA-256 of the configured secret.
func NewPasetoSigner(cfg Config) (*PasetoSigner, error) {
	sum := sha256.Sum256([]byte(cfg.Secret))
	key, err := paseto.V4SymmetricKeyFromBytes(sum[:])
	if err != nil {
		return nil, ErrConfig
	}
	return &PasetoSigner{
		key:    key,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		skew:   cfg.ClockSkew,
	}, nil
}

func (s *PasetoSigner) Sign(subject string, now time.Time) (string, error) {
	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetSubject(subject)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(s.ttl))

	return tok.V4Encrypt(s.key, nil), nil
}

func (s *PasetoSigner) Parse(token string, now time.Time) (string, error) {
	// Fresh parser per call so rules never accumulate across verifies.
	// Expiry is checked against the injected clock, not time.Now.
	p := paseto.NewParserWithoutExpiryCheck()
	if s.issuer != "" {
		p.AddRule(paseto.IssuedBy(s.issuer))
	}
	p.AddRule(validWithin(now, s.skew))

	parsed, err := p.ParseV4Local(s.key, token, nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// validWithin requires exp and tolerates skew on both exp and nbf.
func validWithin(now time.Time, skew time.Duration) paseto.Rule {
	return func(t paseto.Token) error {
		exp, err := t.GetExpiration()
		if err != nil {
			return err
		}
		if !now.Add(-skew).Before(exp) {
			return ErrInvalidToken
		}
		if nbf, err := t.GetNotBefore(); err == nil && now.Add(skew).Before(nbf) {
			return ErrInvalidToken
		}
		return nil
	}
}
