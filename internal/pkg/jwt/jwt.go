package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// StateClaims is the payload of an OAuth state token. It carries the PKCE
// verifier so the callback needs no server-side storage.
type StateClaims struct {
	Verifier string `json:"pkce"`
	Return   string `json:"ret,omitempty"`
	jwtlib.RegisteredClaims
}

// Signer signs and verifies HS256 tokens with one secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer for secret. The secret must be non-empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the signing and validation time.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	return &Signer{secret: s.secret, now: now}
}

// SignState creates a state token valid for ttl.
func (s *Signer) SignState(verifier, returnTo string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := StateClaims{
		Verifier: verifier,
		Return:   returnTo,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseState validates a state token and returns its claims.
func (s *Signer) ParseState(tokenStr string) (*StateClaims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &StateClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtlib.WithTimeFunc(s.now), jwtlib.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid || claims.Verifier == "" {
		return nil, errors.New("invalid state")
	}
	return claims, nil
}
