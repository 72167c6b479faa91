// Package cache – Redis-backed store.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements the Cache contract over a go-redis client. Lists use
// LPUSH/LTRIM so PushCapped keeps ring-buffer semantics server-side.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis cache client. The connection is not verified
// here; call Ping (see New in cache.go) before trusting it.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the underlying go-redis client so the realtime bridge can
// reuse the same connection pool for pub/sub.
func (r *Redis) Client() *redis.Client { return r.client }

// Get returns the value at key or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return v, err
}

// Set stores value under key with the given TTL (0 means no expiry).
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// DeletePattern removes every key beginning with prefix using SCAN to avoid
// blocking Redis on large keyspaces.
func (r *Redis) DeletePattern(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// PushCapped prepends value, trims the list to max, and refreshes the TTL in
// one pipeline round trip.
func (r *Redis) PushCapped(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error {
	if max <= 0 {
		max = 1
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, int64(max-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ListRange returns up to n list entries, newest first.
func (r *Redis) ListRange(ctx context.Context, key string, n int) ([][]byte, error) {
	stop := int64(-1) // full list
	if n > 0 {
		stop = int64(n - 1)
	}
	vals, err := r.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Close releases the client's connections.
func (r *Redis) Close() error { return r.client.Close() }
