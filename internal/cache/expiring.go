// Package cache provides a generic LRU-backed cache with per-entry TTL
// expiry. The similarity registry and the hybrid retriever both key short-TTL
// read caches through it.
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry wraps a cached value with its expiration time.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Expiring is a bounded cache whose entries expire after a fixed TTL.
// Expired entries are dropped lazily on read; the LRU bound prevents
// unbounded growth regardless of TTL.
type Expiring[K comparable, V any] struct {
	ttl   time.Duration
	mu    sync.Mutex
	cache *lru.Cache[K, entry[V]]
}

// New creates an expiring cache holding at most size entries.
func New[K comparable, V any](size int, ttl time.Duration) *Expiring[K, V] {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above.
		panic(fmt.Sprintf("cache: lru.New: %v", err))
	}
	return &Expiring[K, V]{ttl: ttl, cache: c}
}

// Get returns the cached value for key if present and unexpired.
func (c *Expiring[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.cache.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Expiring[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)})
}

// Remove drops the entry for key if present.
func (c *Expiring[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// RemoveFunc drops every entry whose key satisfies match. Used to invalidate
// scoped key ranges, e.g. all similarTags entries touching one tag.
func (c *Expiring[K, V]) RemoveFunc(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.cache.Keys() {
		if match(key) {
			c.cache.Remove(key)
		}
	}
}

// Purge empties the cache.
func (c *Expiring[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been read.
func (c *Expiring[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
