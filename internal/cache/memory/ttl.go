// Package memory implements a bounded in-process TTL cache shared by the
// price and exchange-rate lookups.
package memory

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds the cache when the configured limit is zero.
const DefaultMaxEntries = 1000

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a capacity-bounded key/value store with per-entry expiry.
//
// Expiry is lazy: Get treats an expired entry as a miss and removes it. A
// periodic Sweep keeps memory in check but is not required for correctness.
// When the cache is full, inserting a new key evicts the live entry nearest
// to expiry, on the grounds that it is the least useful one to keep.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries keys.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]entry, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value stored under key, or ok=false on a miss. An entry
// whose TTL has elapsed is removed and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for the given TTL, replacing any previous entry.
// A non-positive TTL is ignored.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key from the cache if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// evictLocked drops the entry nearest to expiry. Expired entries qualify
// first by construction since their expiresAt is already in the past.
func (c *Cache) evictLocked() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim = k
			oldest = e.expiresAt
			found = true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
