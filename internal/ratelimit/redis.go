package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "membership:login:"

// RedisLimiter keeps failure counters and locks in Redis so every replica
// shares the same view.
type RedisLimiter struct {
	rdb    redis.Cmdable
	policy Policy
	prefix string
}

// NewRedisLimiter builds a limiter on top of rdb.
func NewRedisLimiter(rdb redis.Cmdable, policy Policy) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, policy: policy.normalize(), prefix: defaultKeyPrefix}
}

func (l *RedisLimiter) failKey(key string) string { return l.prefix + "fail:" + key }
func (l *RedisLimiter) lockKey(key string) string { return l.prefix + "lock:" + key }

func (l *RedisLimiter) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, l.lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("read login lock: %w", err)
	}
	// -2: no key, -1: no expiry (not written by us).
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) (time.Duration, error) {
	failKey := l.failKey(key)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, failKey)
	pipe.ExpireNX(ctx, failKey, l.policy.LockDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record failed login: %w", err)
	}

	if incr.Val() < int64(l.policy.MaxAttempts) {
		return 0, nil
	}

	pipe = l.rdb.TxPipeline()
	pipe.Set(ctx, l.lockKey(key), 1, l.policy.LockDuration)
	pipe.Del(ctx, failKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("lock login: %w", err)
	}
	return l.policy.LockDuration, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.failKey(key)).Err(); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}
