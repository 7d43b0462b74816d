package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/membership-service/internal/config"
)

func TestNewLogger_FallsBackOnUnknownLevel(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty", Service: "membership-service"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", http.MethodPost, 200, 10*time.Millisecond)
	m.RecordRequest("/auth/login", http.MethodPost, 200, 30*time.Millisecond)
	m.RecordRequest("/auth/me", http.MethodGet, 401, time.Millisecond)
	m.RecordError("/auth/me", http.MethodGet, "INVALID_TOKEN")

	snap := m.Snapshot()
	require.Len(t, snap.Requests, 2)
	require.Equal(t, "/auth/login|POST|200", snap.Requests[0].Key)
	require.EqualValues(t, 2, snap.Requests[0].Count)
	require.InDelta(t, 20.0, snap.Requests[0].AvgDurationMS, 0.001)
	require.EqualValues(t, 1, snap.Errors["/auth/me|GET|INVALID_TOKEN"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", http.MethodGet, 200, time.Millisecond)
	m.RecordError("/", http.MethodGet, "X")
	require.Empty(t, m.Snapshot().Requests)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString(RequestID(c)) })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	require.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	require.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])

	snap := metrics.Snapshot()
	require.Len(t, snap.Requests, 2)
	require.Equal(t, "/missing|GET|404", snap.Requests[0].Key)
	require.Equal(t, "/ok|GET|200", snap.Requests[1].Key)
}

func TestInitSentry_EmptyDSN(t *testing.T) {
	require.NoError(t, InitSentry("", "test", "dev"))
	require.NotPanics(t, func() { CaptureError(nil, nil) })
}
