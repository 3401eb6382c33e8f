package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiry
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory cache with per-entry TTL and an optional size cap.
// When the cap is reached, expired entries are purged first and then the
// entry closest to expiry is evicted.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	maxSize int
	now     func() time.Time
}

// New creates a cache; maxSize <= 0 means unbounded
func New[V any](maxSize int) *Cache[V] {
	return &Cache[V]{
		items:   map[string]entry[V]{},
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Set stores a value with the given TTL
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Get returns the value if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, exists := c.items[key]
	if !exists || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) evictLocked() {
	now := c.now()
	for key, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, key)
		}
	}
	if len(c.items) < c.maxSize {
		return
	}

	var victim string
	var soonest time.Time
	for key, e := range c.items {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = key
			soonest = e.expiresAt
		}
	}
	delete(c.items, victim)
}
