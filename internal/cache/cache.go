// Package cache provides a small TTL cache used to memoize option chain
// fetches. Expiry is lazy: a stale entry is treated as a miss on read and
// overwritten by the next Put, never actively evicted.
package cache

import (
	"sync"
	"time"
)

// TTL is a fixed-lifetime cache safe for concurrent use. The zero value is
// not usable; construct with New.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time // injectable for tests
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a TTL cache. A non-positive ttl disables caching: every Get
// is a miss.
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with the configured TTL. Writes are
// idempotent upserts; a later Put simply replaces the expiry.
func (c *TTL[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Clear drops all entries. Exposed so tests can reset state without
// depending on wall-clock ordering.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored entries, including any that have
// expired but not yet been overwritten.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
