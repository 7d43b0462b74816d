package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// MemoryLimiter is a process-local LoginLimiter. Failures older than the
// lock duration no longer count.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryLimiter builds a limiter. now may be nil.
func NewMemoryLimiter(policy Policy, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		policy:  policy.normalize(),
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

func (l *MemoryLimiter) Locked(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return 0, nil
	}
	if remaining := entry.lockedUntil.Sub(l.now()); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) >= l.policy.LockDuration {
		entry = &memoryEntry{windowStart: now}
		l.entries[key] = entry
	}

	entry.failures++
	if entry.failures < l.policy.MaxAttempts {
		return 0, nil
	}

	entry.failures = 0
	entry.windowStart = now
	entry.lockedUntil = now.Add(l.policy.LockDuration)
	return l.policy.LockDuration, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}
