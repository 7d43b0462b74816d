package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/membership-service/internal/api/http/handlers"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/observability"
	"github.com/spec-kit/membership-service/internal/ratelimit"
	"github.com/spec-kit/membership-service/internal/repository/memory"
	"github.com/spec-kit/membership-service/internal/service"
)

type stubDependency struct {
	enabled bool
	err     error
}

func (d stubDependency) Enabled() bool                { return d.enabled }
func (d stubDependency) Ping(_ context.Context) error { return d.err }

type testServer struct {
	app     *fiber.App
	users   *memory.UserRepository
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, redis handlers.Dependency) *testServer {
	t.Helper()

	cfg := config.AuthConfig{
		JWTSecret:             "0123456789abcdef0123456789abcdef",
		JWTIssuer:             "membership-service",
		AccessTokenTTLMinutes: 60,
		RefreshTokenTTLHours:  24,
		BcryptCost:            bcrypt.MinCost,
		IssueRefreshOnLogin:   true,
		LoginMaxAttempts:      2,
		LoginLockMinutes:      15,
	}
	users := memory.NewUserRepository(nil)
	svc, err := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo:         users,
		RefreshTokenRepo: memory.NewRefreshTokenRepository(nil),
		Limiter:          ratelimit.NewMemoryLimiter(ratelimit.Policy{MaxAttempts: 2, LockDuration: 15 * time.Minute}, nil),
	})
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("membership-service", "test", stubDependency{}, redis, metrics),
		Auth:           handlers.NewAuthHandler(svc),
		Admin:          handlers.NewAdminHandler(svc),
		AuthMiddleware: auth.NewAuthMiddleware(svc),
	})
	return &testServer{app: app, users: users, metrics: metrics}
}

type envelope struct {
	Data struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		Auth struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			TokenType    string `json:"token_type"`
		} `json:"auth"`
		Status  string `json:"status"`
		Revoked int64  `json:"revoked"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*nethttp.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func TestRoutes_MemberLifecycle(t *testing.T) {
	s := newTestServer(t, stubDependency{})
	creds := map[string]string{"email": "A@x.com", "password": "pw"}

	resp, env := s.do(t, nethttp.MethodPost, "/auth/register", "", creds)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	require.Equal(t, "a@x.com", env.Data.User.Email)
	require.Equal(t, "user", env.Data.User.Role)
	require.Equal(t, "Bearer", env.Data.Auth.TokenType)
	require.NotEmpty(t, env.Data.Auth.AccessToken)
	require.Empty(t, env.Data.Auth.RefreshToken)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/register", "", creds)
	require.Equal(t, nethttp.StatusConflict, resp.StatusCode)
	require.Equal(t, "EMAIL_ALREADY_REGISTERED", env.Error.Code)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/login", "", creds)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	access, refresh := env.Data.Auth.AccessToken, env.Data.Auth.RefreshToken
	require.NotEmpty(t, refresh)

	resp, env = s.do(t, nethttp.MethodGet, "/auth/me", access, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "a@x.com", env.Data.User.Email)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.NotEmpty(t, env.Data.Auth.AccessToken)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "logged_out", env.Data.Status)
	require.EqualValues(t, 1, env.Data.Revoked)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestRoutes_LoginFailures(t *testing.T) {
	s := newTestServer(t, stubDependency{})
	s.do(t, nethttp.MethodPost, "/auth/register", "", map[string]string{"email": "b@x.com", "password": "pw"})

	resp, env := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "b@x.com"})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "b@x.com", "password": "bad"})
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "b@x.com", "password": "bad"})
	require.Equal(t, nethttp.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "LOGIN_LOCKED", env.Error.Code)
	require.Equal(t, "900", resp.Header.Get(fiber.HeaderRetryAfter))

	resp, _ = s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "b@x.com", "password": "pw"})
	require.Equal(t, nethttp.StatusTooManyRequests, resp.StatusCode)
}

func TestRoutes_ProtectedRequireBearer(t *testing.T) {
	s := newTestServer(t, stubDependency{})

	resp, env := s.do(t, nethttp.MethodGet, "/auth/me", "", nil)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, env = s.do(t, nethttp.MethodPost, "/auth/logout", "not-a-jwt", nil)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "INVALID_TOKEN", env.Error.Code)
}

func TestRoutes_AdminRevokeSessions(t *testing.T) {
	s := newTestServer(t, stubDependency{})

	hash, err := bcrypt.GenerateFromPassword([]byte("root-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, s.users.Create(context.Background(), &domain.User{
		Email: "root@x.com", PasswordHash: string(hash), Role: domain.RoleAdmin,
	}))

	_, member := s.do(t, nethttp.MethodPost, "/auth/register", "", map[string]string{"email": "m@x.com", "password": "pw"})
	memberID := member.Data.User.ID
	_, login := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "m@x.com", "password": "pw"})

	resp, env := s.do(t, nethttp.MethodPost, "/admin/users/"+memberID+"/sessions/revoke", login.Data.Auth.AccessToken, nil)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	_, admin := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "root@x.com", "password": "root-pw"})
	adminToken := admin.Data.Auth.AccessToken

	resp, env = s.do(t, nethttp.MethodPost, "/admin/users/"+memberID+"/sessions/revoke", adminToken, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, env.Data.Revoked)

	resp, env = s.do(t, nethttp.MethodPost, "/admin/users/unknown/sessions/revoke", adminToken, nil)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	require.Equal(t, "USER_NOT_FOUND", env.Error.Code)
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, stubDependency{})

	resp, _ := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	mresp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer mresp.Body.Close()
	var snap observability.Snapshot
	require.NoError(t, json.NewDecoder(mresp.Body).Decode(&snap))
	require.NotEmpty(t, snap.Requests)

	down := newTestServer(t, stubDependency{enabled: true, err: errors.New("connection refused")})
	resp, env := down.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	require.Equal(t, nethttp.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "DEPENDENCY_UNAVAILABLE", env.Error.Code)
}

func TestRoutes_PanicAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, stubDependency{})

	resp, env := s.do(t, nethttp.MethodGet, "/boom", "", nil)
	require.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	require.NotEmpty(t, resp.Header.Get(observability.HeaderRequestID))

	var counted bool
	for _, stat := range s.metrics.Snapshot().Requests {
		if stat.Key == "/boom|GET|500" {
			counted = stat.Count == 1
		}
	}
	require.True(t, counted, "panicking request recorded in request metrics")

	resp, env = s.do(t, nethttp.MethodGet, "/nowhere", "", nil)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRoutes_RegisterOverlongPassword(t *testing.T) {
	s := newTestServer(t, stubDependency{})

	resp, env := s.do(t, nethttp.MethodPost, "/auth/register", "", map[string]string{
		"email":    "long@x.com",
		"password": strings.Repeat("p", 80),
	})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}
