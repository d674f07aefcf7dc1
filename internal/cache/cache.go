// SPDX-License-Identifier: MIT

// Package cache stores serialized operation results keyed by a digest of
// the operation, its parameters and the input payloads. Identical requests
// skip the geometry pipeline entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ResultCache provides thread-safe caching of encoded operation results.
type ResultCache interface {
	// Get retrieves a result. Returns false if not found or expired.
	Get(key string) ([]byte, bool)
	// Set stores a result with the specified TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a result.
	Delete(key string)
	// Clear removes all results.
	Clear()
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// Key builds a cache key from the operation name, its parameters and the
// raw input payloads. Payload order is significant.
func Key(operation string, params string, payloads ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(params))
	for _, p := range payloads {
		h.Write([]byte{0})
		h.Write(p)
	}
	return "result:" + hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// memoryCache is an in-memory implementation of ResultCache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemoryCache creates an in-memory cache. When cleanupInterval is
// positive a background janitor evicts expired entries.
func NewMemoryCache(cleanupInterval time.Duration) ResultCache {
	c := &memoryCache{
		entries: make(map[string]*entry),
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.isExpired() {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	c.stats.Sets++
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, key)
			count++
		}
	}

	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the background janitor.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// noOpCache disables caching.
type noOpCache struct{}

// NewNoOpCache creates a cache that never stores anything.
func NewNoOpCache() ResultCache {
	return &noOpCache{}
}

func (c *noOpCache) Get(key string) ([]byte, bool)                  { return nil, false }
func (c *noOpCache) Set(key string, value []byte, ttl time.Duration) {}
func (c *noOpCache) Delete(key string)                               {}
func (c *noOpCache) Clear()                                          {}
func (c *noOpCache) Stats() Stats                                    { return Stats{} }
