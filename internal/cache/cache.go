// Package cache memoizes entity state per (kind, key). Each Cache is an
// independent instance; there is no package-level state.
package cache

import (
	"strings"
	"sync"
)

type entryKey struct {
	kind string
	key  string
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[entryKey]any
	hits    uint64
	misses  uint64
}

func New() *Cache {
	return &Cache{entries: make(map[entryKey]any)}
}

// Get returns the cached value for (kind, key).
func (c *Cache) Get(kind, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[entryKey{kind, key}]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Set overwrites the cached value.
func (c *Cache) Set(kind, key string, v any) {
	c.mu.Lock()
	c.entries[entryKey{kind, key}] = v
	c.mu.Unlock()
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(kind, key string) {
	c.mu.Lock()
	delete(c.entries, entryKey{kind, key})
	c.mu.Unlock()
}

// InvalidatePrefix drops every entry of kind whose key starts with prefix.
func (c *Cache) InvalidatePrefix(kind, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.kind == kind && strings.HasPrefix(k.key, prefix) {
			delete(c.entries, k)
		}
	}
}

// Entries returns a copy of every entry of kind whose key starts with prefix.
func (c *Cache) Entries(kind, prefix string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range c.entries {
		if k.kind == kind && strings.HasPrefix(k.key, prefix) {
			out[k.key] = v
		}
	}
	return out
}

// Clear drops everything, or only the given kinds when provided.
func (c *Cache) Clear(kinds ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(kinds) == 0 {
		c.entries = make(map[entryKey]any)
		return
	}
	drop := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		drop[k] = true
	}
	for k := range c.entries {
		if drop[k.kind] {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
