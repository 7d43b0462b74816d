package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/repository"
)

const (
	// DefaultRefreshTokenTTL applies when the service is built with a non-positive TTL.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	refreshTokenBytes       = 32
	maxRefreshTokenAttempts = 5
)

// ErrRefreshTokenCollision is returned when random generation keeps hitting stored tokens.
var ErrRefreshTokenCollision = errors.New("refresh token collision")

// RefreshTokenService owns the refresh token lifecycle: issue, expiry check,
// rotation and revocation.
type RefreshTokenService struct {
	repo   repository.RefreshTokenRepository
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewRefreshTokenService builds the service. now may be nil.
func NewRefreshTokenService(repo repository.RefreshTokenRepository, ttl time.Duration, now func() time.Time, logger *zap.Logger) *RefreshTokenService {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshTokenService{repo: repo, ttl: ttl, now: now, logger: logger}
}

// TTL returns the refresh token lifetime.
func (s *RefreshTokenService) TTL() time.Duration {
	return s.ttl
}

// Create issues a new refresh token for userID. Existing tokens of the user stay valid.
func (s *RefreshTokenService) Create(ctx context.Context, userID string) (*domain.RefreshToken, error) {
	for attempt := 0; attempt < maxRefreshTokenAttempts; attempt++ {
		token, err := s.newToken(userID)
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, token)
		if errors.Is(err, repository.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return token, nil
	}
	return nil, ErrRefreshTokenCollision
}

// FindByToken loads a stored token; unknown strings fail with domain.ErrRefreshTokenNotFound.
func (s *RefreshTokenService) FindByToken(ctx context.Context, tokenStr string) (*domain.RefreshToken, error) {
	return s.repo.GetByToken(ctx, tokenStr)
}

// Verify checks expiry. An expired token is deleted before domain.ErrTokenExpired is returned.
func (s *RefreshTokenService) Verify(ctx context.Context, token *domain.RefreshToken) (*domain.RefreshToken, error) {
	if !token.Expired(s.now()) {
		return token, nil
	}
	if err := s.repo.Delete(ctx, token.ID); err != nil {
		return nil, err
	}
	s.logger.Info("refresh token expired", zap.String("user_id", token.UserID), zap.Time("expired_at", token.ExpiresAt))
	return nil, domain.ErrTokenExpired
}

// Rotate atomically replaces token with a freshly issued one. The old token's
// expiry is never extended; the new token gets a full TTL.
func (s *RefreshTokenService) Rotate(ctx context.Context, token *domain.RefreshToken) (*domain.RefreshToken, error) {
	for attempt := 0; attempt < maxRefreshTokenAttempts; attempt++ {
		next, err := s.newToken(token.UserID)
		if err != nil {
			return nil, err
		}
		err = s.repo.Replace(ctx, token.ID, next)
		if errors.Is(err, repository.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, ErrRefreshTokenCollision
}

// RevokeAllForUser deletes every refresh token owned by userID. Calling it
// for a user without tokens succeeds with zero.
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUserID(ctx, userID)
}

// PurgeExpired deletes every expired token.
func (s *RefreshTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *RefreshTokenService) newToken(userID string) (*domain.RefreshToken, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &domain.RefreshToken{
		UserID:    userID,
		Token:     base64.RawURLEncoding.EncodeToString(b),
		ExpiresAt: s.now().Add(s.ttl),
	}, nil
}
