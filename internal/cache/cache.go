// Package cache provides the short-TTL key/value store used for notification
// history and derived caches (e.g. unread counts).
//
// Two implementations share one contract: a Redis-backed store for normal
// deployments and an in-process fallback with identical semantics. New()
// selects between them at startup by pinging Redis, so a missing or
// unreachable Redis degrades the process to local caching without any caller
// noticing a different behavior.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the ephemeral store contract. Keys are flat strings; values are
// opaque bytes (callers handle their own serialization). DeletePattern removes
// every key beginning with the given prefix.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, prefix string) error

	// PushCapped prepends value to the list at key, trims the list to the
	// most-recent max entries, and refreshes the TTL. This is the ring-buffer
	// primitive behind per-recipient notification history.
	PushCapped(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error

	// ListRange returns up to n entries of the list at key, newest first.
	ListRange(ctx context.Context, key string, n int) ([][]byte, error)

	// Close releases any underlying connections.
	Close() error
}

// New returns a Redis-backed cache when addr is non-empty and reachable
// within the ping timeout, and the in-process fallback otherwise. The second
// return value reports whether Redis is in use.
func New(ctx context.Context, addr, password string, db int) (Cache, bool) {
	if addr == "" {
		return NewMemory(), false
	}
	r := NewRedis(addr, password, db)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		_ = r.Close()
		return NewMemory(), false
	}
	return r, true
}
