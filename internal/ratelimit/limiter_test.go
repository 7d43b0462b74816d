package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_LocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Policy{MaxAttempts: 3, LockDuration: time.Minute}, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		lock, err := l.Fail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Zero(t, lock)
	}
	remaining, err := l.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	require.Zero(t, remaining)

	lock, err := l.Fail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, time.Minute, lock)

	now = now.Add(20 * time.Second)
	remaining, err = l.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, 40*time.Second, remaining)

	other, err := l.Locked(ctx, "b@x.com")
	require.NoError(t, err)
	require.Zero(t, other)

	now = now.Add(time.Minute)
	remaining, err = l.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	require.Zero(t, remaining)
}

func TestMemoryLimiter_OldFailuresExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Policy{MaxAttempts: 2, LockDuration: time.Minute}, func() time.Time { return now })

	_, err := l.Fail(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	lock, err := l.Fail(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, lock)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(Policy{MaxAttempts: 2, LockDuration: time.Minute}, nil)

	_, err := l.Fail(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))

	lock, err := l.Fail(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, lock)
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.normalize()
	require.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	require.Equal(t, DefaultLockDuration, p.LockDuration)
}

// TEST_REDIS_ADDR=127.0.0.1:6379 go test ./internal/ratelimit -run Redis
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis tests")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	l := NewRedisLimiter(rdb, Policy{MaxAttempts: 2, LockDuration: 5 * time.Second})
	key := uuid.NewString() + "@x.com"
	t.Cleanup(func() { rdb.Del(context.Background(), l.failKey(key), l.lockKey(key)) })

	lock, err := l.Fail(ctx, key)
	require.NoError(t, err)
	require.Zero(t, lock)

	require.NoError(t, l.Reset(ctx, key))
	lock, err = l.Fail(ctx, key)
	require.NoError(t, err)
	require.Zero(t, lock)

	lock, err = l.Fail(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, lock)

	remaining, err := l.Locked(ctx, key)
	require.NoError(t, err)
	require.Greater(t, remaining, time.Duration(0))
	require.LessOrEqual(t, remaining, 5*time.Second)
}
