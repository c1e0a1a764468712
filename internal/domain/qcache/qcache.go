// Package qcache is a small TTL cache fronting repeat leaderboard reads.
//
// Entries are independent per query key and expire after a short TTL.
// There is deliberately no single-flight deduplication: concurrent misses
// on the same key may each recompute and the last writer wins, which is
// safe because every cached value is idempotently recomputable.
package qcache

import (
	"context"
	"sync"
	"time"
)

// Default cache configuration constants.
const (
	defaultTTL        = 60 * time.Second
	defaultMaxEntries = 4096
)

// Cache stores computed query results keyed by query shape.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the cache size. When full, a Put drops all
// expired entries first and is a no-op if the cache is still full.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock overrides the time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Cache with configuration options.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Put stores a value under key. Overwrites are last-writer-wins.
func (c *Cache) Put(_ context.Context, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
			return
		}
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Len returns the number of entries, including any not yet evicted
// expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictExpiredLocked drops expired entries. Caller holds the write lock.
func (c *Cache) evictExpiredLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
