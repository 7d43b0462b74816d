// Package ratelimit counts failed logins per account and locks the account
// once the configured number of failures is reached.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 15 * time.Minute
)

// LoginLimiter tracks failed login attempts by key (normalized email).
type LoginLimiter interface {
	// Locked returns the remaining lock time for key, or zero.
	Locked(ctx context.Context, key string) (time.Duration, error)
	// Fail records a failed attempt and returns the lock duration when
	// this failure locked the key, or zero.
	Fail(ctx context.Context, key string) (time.Duration, error)
	// Reset clears the failure counter after a successful login.
	Reset(ctx context.Context, key string) error
}

// Policy holds the shared limiter settings.
type Policy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}
