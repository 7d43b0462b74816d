package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/events"
	"github.com/spec-kit/membership-service/internal/ratelimit"
	"github.com/spec-kit/membership-service/internal/repository"
)

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// AuthService coordinates registration, login, refresh and logout flows.
type AuthService struct {
	users      repository.UserRepository
	refresh    *RefreshTokenService
	hasher     auth.PasswordHasher
	issuer     *auth.AccessTokenIssuer
	limiter    ratelimit.LoginLimiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	rotateRefresh     bool
	refreshOnLogin    bool
	refreshOnRegister bool

	decoyOnce sync.Once
	decoyHash string
}

// AuthDependencies encapsulates collaborators for the auth service.
// Limiter, Dispatcher, Logger, Hasher and Clock are optional.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           auth.PasswordHasher
	Limiter          ratelimit.LoginLimiter
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Clock            func() time.Time
}

// NewAuthService builds the service. It fails when the signing key is unusable.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil || deps.RefreshTokenRepo == nil {
		return nil, errors.New("auth service: user and refresh token repositories are required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(cfg.BcryptCost)
	}

	signer, err := auth.NewTokenSigner([]byte(cfg.JWTSecret), auth.WithIssuer(cfg.JWTIssuer), auth.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	return &AuthService{
		users:             deps.UserRepo,
		refresh:           NewRefreshTokenService(deps.RefreshTokenRepo, cfg.RefreshTokenTTL(), now, logger),
		hasher:            hasher,
		issuer:            auth.NewAccessTokenIssuer(signer, cfg.AccessTokenTTL()),
		limiter:           deps.Limiter,
		dispatcher:        deps.Dispatcher,
		logger:            logger,
		now:               now,
		rotateRefresh:     cfg.RotateRefreshTokens,
		refreshOnLogin:    cfg.IssueRefreshOnLogin,
		refreshOnRegister: cfg.IssueRefreshOnRegister,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a member account with the default role and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, domain.TokenPair, error) {
	email := NormalizeEmail(in.Email)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}
	if exists {
		return nil, domain.TokenPair{}, domain.ErrEmailAlreadyRegistered
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         domain.DefaultRole,
	}
	// The unique index still wins when two registrations race past the check above.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, domain.TokenPair{}, err
	}

	pair, err := s.issueTokens(ctx, user, s.refreshOnRegister)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	s.publish(ctx, events.New(events.EventUserRegistered, user.ID, s.now(), nil))
	return user, pair, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords fail identically with domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, domain.TokenPair, error) {
	email = NormalizeEmail(email)

	if s.limiter != nil {
		remaining, err := s.limiter.Locked(ctx, email)
		if err != nil {
			s.logger.Warn("check login lock", zap.Error(err))
		} else if remaining > 0 {
			return nil, domain.TokenPair{}, &domain.LoginLockedError{RetryAfter: remaining}
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.hasher.Verify(password, s.decoy())
		return nil, domain.TokenPair{}, s.loginFailed(ctx, email, "unknown_email")
	case err != nil:
		return nil, domain.TokenPair{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, domain.TokenPair{}, s.loginFailed(ctx, email, "wrong_password")
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn("reset login limiter", zap.Error(err))
		}
	}

	pair, err := s.issueTokens(ctx, user, s.refreshOnLogin)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	s.publish(ctx, events.New(events.EventUserLoggedIn, user.ID, s.now(), nil))
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new access token. When rotation is
// enabled the presented token is replaced and the new one returned; otherwise
// the presented token is returned with its original expiry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.TokenPair{}, domain.ErrInvalidCredentials
	}

	stored, err := s.refresh.FindByToken(ctx, refreshToken)
	if errors.Is(err, domain.ErrRefreshTokenNotFound) {
		return domain.TokenPair{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.TokenPair{}, err
	}

	stored, err = s.refresh.Verify(ctx, stored)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	access, accessExp, err := s.issuer.Issue(user.Email)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair := domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     stored.Token,
		RefreshExpiresAt: stored.ExpiresAt,
	}

	if s.rotateRefresh {
		next, err := s.refresh.Rotate(ctx, stored)
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			// Another request already rotated this token.
			return domain.TokenPair{}, domain.ErrInvalidCredentials
		}
		if err != nil {
			return domain.TokenPair{}, err
		}
		pair.RefreshToken = next.Token
		pair.RefreshExpiresAt = next.ExpiresAt
	}

	s.publish(ctx, events.New(events.EventTokenRefreshed, user.ID, s.now(), events.TokenRefreshedPayload{Rotated: s.rotateRefresh}))
	return pair, nil
}

// Logout revokes every refresh token of userID. Repeated calls succeed.
func (s *AuthService) Logout(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.New(events.EventSessionsRevoked, userID, s.now(), events.SessionsRevokedPayload{Revoked: revoked, ActorID: userID}))
	return revoked, nil
}

// RevokeSessions lets an administrator sign out another user everywhere.
func (s *AuthService) RevokeSessions(ctx context.Context, actorID, userID string) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	revoked, err := s.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.New(events.EventSessionsRevoked, userID, s.now(), events.SessionsRevokedPayload{Revoked: revoked, ActorID: actorID}))
	return revoked, nil
}

// Me resolves the member an access token was issued for.
func (s *AuthService) Me(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// Authenticate validates an access token and loads its owner.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	email, err := s.issuer.ExtractIdentity(accessToken)
	if err != nil {
		return nil, err
	}
	return s.Me(ctx, email)
}

// PurgeExpiredTokens deletes expired refresh tokens.
func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	purged, err := s.refresh.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("expired refresh tokens purged", zap.Int64("count", purged))
	return purged, nil
}

// Issuer exposes the access token issuer for middleware usage.
func (s *AuthService) Issuer() *auth.AccessTokenIssuer {
	return s.issuer
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User, withRefresh bool) (domain.TokenPair, error) {
	access, accessExp, err := s.issuer.Issue(user.Email)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair := domain.TokenPair{AccessToken: access, AccessExpiresAt: accessExp}
	if !withRefresh {
		return pair, nil
	}
	token, err := s.refresh.Create(ctx, user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair.RefreshToken = token.Token
	pair.RefreshExpiresAt = token.ExpiresAt
	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) error {
	s.publish(ctx, events.New(events.EventLoginFailed, "", s.now(), events.LoginFailedPayload{Email: email, Reason: reason}))

	if s.limiter == nil {
		return domain.ErrInvalidCredentials
	}
	lock, err := s.limiter.Fail(ctx, email)
	if err != nil {
		s.logger.Warn("record failed login", zap.Error(err))
		return domain.ErrInvalidCredentials
	}
	if lock > 0 {
		return &domain.LoginLockedError{RetryAfter: lock}
	}
	return domain.ErrInvalidCredentials
}

// decoy returns a hash compared against when the email is unknown, so both
// failure paths cost one bcrypt comparison.
func (s *AuthService) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("membership-service-decoy")
		if err != nil {
			s.logger.Warn("build decoy hash", zap.Error(err))
			return
		}
		s.decoyHash = hash
	})
	return s.decoyHash
}

// publish hands the event to the dispatcher, whose audit subscriber logs it.
// Without a dispatcher the event is logged here instead.
func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		s.logger.Info(string(event.Type), zap.String("event_id", event.ID), zap.String("user_id", event.UserID))
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
