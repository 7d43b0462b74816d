package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/membership-service/internal/domain"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newSigner(t *testing.T, clock *fakeClock, opts ...SignerOption) *TokenSigner {
	t.Helper()
	opts = append(opts, WithClock(clock.Now))
	s, err := NewTokenSigner(testKey, opts...)
	require.NoError(t, err)
	return s
}

func claimsFor(sub string, now time.Time, ttl time.Duration) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
}

func TestNewTokenSigner_RejectsShortKey(t *testing.T) {
	_, err := NewTokenSigner([]byte("too-short"))
	require.ErrorIs(t, err, ErrWeakSigningKey)

	_, err = NewTokenSigner(nil)
	require.ErrorIs(t, err, ErrWeakSigningKey)
}

func TestTokenSigner_SignVerifyRoundTrip(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock, WithIssuer("membership-service"))

	token, err := s.Sign(claimsFor("a@x.com", clock.Now(), time.Hour))
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", claims.Subject)
	require.Equal(t, "membership-service", claims.Issuer)
	require.True(t, clock.Now().Equal(claims.IssuedAt.Time))
	require.True(t, clock.Now().Add(time.Hour).Equal(claims.ExpiresAt.Time))
}

func TestTokenSigner_UsesHS512(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)

	token, err := s.Sign(claimsFor("a@x.com", clock.Now(), time.Hour))
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	require.NoError(t, err)
	require.Equal(t, "HS512", parsed.Method.Alg())
}

func TestTokenSigner_Expired(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)

	token, err := s.Sign(claimsFor("a@x.com", clock.Now(), time.Minute))
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)
	_, err = s.Verify(token)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenSigner_TamperedSignature(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)

	token, err := s.Sign(claimsFor("a@x.com", clock.Now(), time.Hour))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = s.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenSigner_OtherKeyRejected(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)
	other, err := NewTokenSigner([]byte("ffffffffffffffffffffffffffffffff"), WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.Sign(claimsFor("a@x.com", clock.Now(), time.Hour))
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenSigner_Malformed(t *testing.T) {
	s := newSigner(t, newClock())

	for _, in := range []string{"", "abc", "a.b", "a.b.c"} {
		_, err := s.Verify(in)
		require.ErrorIs(t, err, domain.ErrInvalidToken, "input %q", in)
		require.NotErrorIs(t, err, domain.ErrTokenExpired)
	}

	_, err := s.Verify("abc")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestTokenSigner_RejectsOtherAlgorithms(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)
	claims := claimsFor("a@x.com", clock.Now(), time.Hour)

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(testKey)
	require.NoError(t, err)
	_, err = s.Verify(hs256)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenSigner_RequiresExpiry(t *testing.T) {
	clock := newClock()
	s := newSigner(t, clock)

	token, err := s.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x.com"}})
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenSigner_IssuerMismatch(t *testing.T) {
	clock := newClock()
	a := newSigner(t, clock, WithIssuer("a"))
	b := newSigner(t, clock, WithIssuer("b"))

	token, err := a.Sign(claimsFor("a@x.com", clock.Now(), time.Hour))
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}
