package token

import (
	"time"

	"github.com/gorilla/securecookie"
)

const cookieName = "devtree_session"

type cookiePayload struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// CookieSigner produces gorilla/securecookie HMAC-signed values.
// The value is signed, not encrypted; the subject is readable by the holder.
type CookieSigner struct {
	sc   *securecookie.SecureCookie
	ttl  time.Duration
	skew time.Duration
}

// NewCookieSigner builds a signer whose MaxAge matches the token TTL.
func NewCookieSigner(cfg Config) *CookieSigner {
	sc := securecookie.New([]byte(cfg.Secret), nil)
	sc.MaxAge(int((cfg.TTL + cfg.ClockSkew).Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &CookieSigner{sc: sc, ttl: cfg.TTL, skew: cfg.ClockSkew}
}

func (s *CookieSigner) Sign(subject string, now time.Time) (string, error) {
	return s.sc.Encode(cookieName, cookiePayload{
		Sub: subject,
		Iat: now.Unix(),
		Exp: now.Add(s.ttl).Unix(),
	})
}

func (s *CookieSigner) Parse(token string, now time.Time) (string, error) {
	var p cookiePayload
	if err := s.sc.Decode(cookieName, token, &p); err != nil {
		return "", ErrInvalidToken
	}
	if p.Sub == "" || p.Exp == 0 {
		return "", ErrInvalidToken
	}
	if !now.Add(-s.skew).Before(time.Unix(p.Exp, 0)) {
		return "", ErrInvalidToken
	}
	return p.Sub, nil
}
