package services

import (
	"sync"
	"time"

	"civicfix-api/internal/models"
)

// GeoCache holds resolved addresses keyed by rounded coordinates. It is
// shared by every concurrent request and constructed once at startup; the
// lock covers map mutation only, never a network call.
type GeoCache struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	order   []string // insertion order, for size-bounded eviction
	ttl     time.Duration
	maxSize int
}

// NewGeoCache returns a cache whose entries expire after ttl and whose size
// stays bounded by maxSize. A sweepInterval > 0 starts a background sweep of
// expired entries.
func NewGeoCache(ttl time.Duration, maxSize int, sweepInterval time.Duration) *GeoCache {
	c := &GeoCache{
		entries: make(map[string]models.CacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}

	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}

	return c
}

// Get returns the cached address for key if the entry is still within TTL.
func (c *GeoCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.CreatedAt) >= c.ttl {
		return "", false
	}
	return entry.Address, true
}

// Set stores an address under key, evicting old entries when the cache
// overflows. Eviction walks insertion order and removes the overflow plus
// roughly 10% of the limit, so repeated inserts do not thrash the bound.
func (c *GeoCache) Set(key, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = models.CacheEntry{Address: address, CreatedAt: time.Now()}

	if len(c.entries) > c.maxSize {
		c.evictOldestLocked(len(c.entries) - c.maxSize + c.maxSize/10)
	}
}

// Len reports the number of live entries.
func (c *GeoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldestLocked removes up to n entries in insertion order. Caller holds
// the write lock. Order slots whose entries were already swept are skipped.
func (c *GeoCache) evictOldestLocked(n int) {
	deleted := 0
	i := 0
	for ; i < len(c.order) && deleted < n; i++ {
		key := c.order[i]
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			deleted++
		}
	}
	c.order = c.order[i:]
}

// sweepLoop periodically removes expired entries.
func (c *GeoCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.Sweep()
	}
}

// Sweep drops every entry older than TTL.
func (c *GeoCache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
