// Package cache – in-process fallback store.
//
// Memory implements the Cache contract over mutex-guarded maps with lazy
// expiry plus a periodic janitor, so a deployment without Redis keeps the
// exact same observable behavior (TTLs honored, prefix deletes, capped
// lists). It is process-local by nature; cross-process invalidation is out of
// scope for the fallback.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	list      [][]byte
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process Cache implementation. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemory constructs the fallback store and starts its expiry janitor.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]*memEntry),
		stop:    make(chan struct{}),
	}
	go m.janitor(time.Minute)
	return m
}

// janitor evicts expired entries so idle keys do not pin memory forever.
// Lazy expiry in Get/ListRange keeps correctness; this only bounds growth.
func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-t.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if e.expired(now) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Get returns the value at key or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key with the given TTL (0 means no expiry).
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	e := &memEntry{value: v}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePattern removes every key beginning with prefix.
func (m *Memory) DeletePattern(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// PushCapped prepends value to the list at key, trims to max, refreshes TTL.
func (m *Memory) PushCapped(_ context.Context, key string, value []byte, max int, ttl time.Duration) error {
	if max <= 0 {
		max = 1
	}
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e, ok := m.entries[key]
	if !ok || e.expired(now) {
		e = &memEntry{}
		m.entries[key] = e
	}
	e.list = append([][]byte{v}, e.list...)
	if len(e.list) > max {
		e.list = e.list[:max]
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

// ListRange returns up to n list entries, newest first.
func (m *Memory) ListRange(_ context.Context, key string, n int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(m.entries, key)
		return nil, nil
	}
	if n <= 0 || n > len(e.list) {
		n = len(e.list)
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		v := make([]byte, len(e.list[i]))
		copy(v, e.list[i])
		out[i] = v
	}
	return out, nil
}

// Close stops the janitor. Subsequent calls are no-ops.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
