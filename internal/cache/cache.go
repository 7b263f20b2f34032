// Package cache provides the TTL + LRU result cache shared by the search
// pipeline. Keys are namespaced as "scope:rest" so whole scopes can be
// invalidated when the index changes.
package cache

import (
	"path"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 1000

// entry pairs a cached value with its insertion time for TTL checks.
type entry struct {
	value    any
	storedAt time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries   int           `json:"entries"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Expired   int64         `json:"expired"`
	Evictions int64         `json:"evictions"`
	Enabled   bool          `json:"enabled"`
	TTL       time.Duration `json:"ttl"`
}

// Cache is a TTL + LRU keyed cache. All operations are serialized under one
// mutex; hold times are microseconds so contention is not a concern.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, entry]
	ttl       time.Duration
	enabled   bool
	hits      int64
	misses    int64
	expired   int64
	evictions int64
}

// New creates a cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxEntries int, enabled bool) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{ttl: ttl, enabled: enabled}
	// Eviction callback only counts; the value needs no teardown.
	l, _ := lru.NewWithEvict[string, entry](maxEntries, func(string, entry) {
		c.evictions++
	})
	c.entries = l
	return c
}

// Set stores a value under key. A disabled cache drops writes silently.
func (c *Cache) Set(key string, value any) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry{value: value, storedAt: time.Now()})
}

// Get returns the cached value, or (nil, false) on miss. Entries older than
// the TTL are removed and reported as misses.
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.storedAt) > c.ttl {
		c.entries.Remove(key)
		c.expired++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// ClearAll removes every entry and returns the number removed.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entries.Len()
	c.entries.Purge()
	return n
}

// ClearScope removes all keys prefixed "scope:" and returns the count.
func (c *Cache) ClearScope(scope string) int {
	prefix := scope + ":"
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

// ClearPattern removes all keys matching the glob pattern and returns the
// count. Malformed patterns match nothing.
func (c *Cache) ClearPattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.entries.Keys() {
		if ok, err := path.Match(pattern, k); err == nil && ok {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.entries.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Expired:   c.expired,
		Evictions: c.evictions,
		Enabled:   c.enabled,
		TTL:       c.ttl,
	}
}
