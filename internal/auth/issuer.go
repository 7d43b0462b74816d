package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/membership-service/internal/domain"
)

// DefaultAccessTokenTTL applies when the issuer is built with a non-positive TTL.
const DefaultAccessTokenTTL = 24 * time.Hour

// AccessTokenIssuer issues access tokens whose subject is the user's email.
type AccessTokenIssuer struct {
	signer *TokenSigner
	ttl    time.Duration
}

// NewAccessTokenIssuer constructs an issuer on top of signer.
func NewAccessTokenIssuer(signer *TokenSigner, ttl time.Duration) *AccessTokenIssuer {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &AccessTokenIssuer{signer: signer, ttl: ttl}
}

// TTL returns the access token lifetime.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for identity, valid from now for the configured TTL.
// Times are truncated to whole seconds, the resolution of the iat and exp claims.
func (i *AccessTokenIssuer) Issue(identity string) (string, time.Time, error) {
	now := i.signer.Now().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)
	token, err := i.signer.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ExtractIdentity returns the subject of a valid token. It fails with
// domain.ErrTokenExpired or an error matching domain.ErrInvalidToken.
func (i *AccessTokenIssuer) ExtractIdentity(token string) (string, error) {
	claims, err := i.signer.Verify(token)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.Join(domain.ErrInvalidToken, errors.New("missing subject"))
	}
	return claims.Subject, nil
}

// Validate reports whether token is usable. It never returns an error.
func (i *AccessTokenIssuer) Validate(token string) bool {
	_, err := i.ExtractIdentity(token)
	return err == nil
}
