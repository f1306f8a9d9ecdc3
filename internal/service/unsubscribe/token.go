// Package unsubscribe issues and verifies the signed tokens embedded in every digest's
// unsubscribe link. Tokens are HS256 JWTs carrying the subscriber email.
package unsubscribe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer and Audience pin tokens to this purpose so other JWTs signed with the
	// same key are rejected.
	Issuer   = "daily-digest"
	Audience = "unsubscribe"

	// DefaultTTL is how long an unsubscribe link stays valid.
	DefaultTTL = 7 * 24 * time.Hour

	minSecretLength = 16
)

var (
	// ErrInvalidToken is returned for malformed, tampered or foreign tokens.
	ErrInvalidToken = errors.New("invalid unsubscribe token")

	// ErrExpiredToken is returned when the token is well-formed but past its expiry.
	ErrExpiredToken = errors.New("unsubscribe token expired")
)

// Tokens signs and verifies unsubscribe tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes Tokens.
type Option func(*Tokens)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tokens) { t.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tokens) { t.now = now }
}

// NewTokens creates a signer/verifier. The secret must be at least 16 bytes.
func NewTokens(secret string, opts ...Option) (*Tokens, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("unsubscribe secret must be at least %d bytes", minSecretLength)
	}
	t := &Tokens{secret: []byte(secret), ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Sign returns a token for email valid for the configured TTL.
func (t *Tokens) Sign(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("email is required")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("Sign: %w", err)
	}
	return signed, nil
}

// Verify returns the email a token was issued for.
func (t *Tokens) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
