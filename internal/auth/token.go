package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/membership-service/internal/domain"
)

// MinSigningKeyBytes is the shortest accepted HS512 key.
const MinSigningKeyBytes = 32

var (
	ErrWeakSigningKey   = fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	ErrMalformedToken   = fmt.Errorf("%w: malformed", domain.ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature", domain.ErrInvalidToken)
)

// Claims describes the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies HS512 tokens with a fixed key.
type TokenSigner struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// SignerOption customizes a TokenSigner.
type SignerOption func(*TokenSigner)

// WithIssuer sets the iss claim written on sign and required on verify.
func WithIssuer(issuer string) SignerOption {
	return func(s *TokenSigner) { s.issuer = issuer }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) SignerOption {
	return func(s *TokenSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenSigner builds a signer. The key is copied.
func NewTokenSigner(key []byte, opts ...SignerOption) (*TokenSigner, error) {
	if len(key) < MinSigningKeyBytes {
		return nil, ErrWeakSigningKey
	}
	s := &TokenSigner{key: append([]byte(nil), key...), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the signer's current time.
func (s *TokenSigner) Now() time.Time {
	return s.now()
}

// Sign builds and signs a JWT for the claims.
func (s *TokenSigner) Sign(claims Claims) (string, error) {
	if s.issuer != "" && claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Verify validates the signature and expiry and returns the claims.
func (s *TokenSigner) Verify(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS512 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
