// Package cache provides an in-memory caching layer for the HTTP server.
// It uses patrickmn/go-cache for TTL-based caching of read snapshots.
package cache

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/neowatch/pkg/special"
)

// Cache wraps go-cache with helpers for event snapshots.
type Cache struct {
	store *gocache.Cache
}

// New creates a new cache with the given TTL and cleanup interval.
// defaultTTL is the default expiration time for cache entries.
// cleanupInterval is how often expired items are removed from memory.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// SnapshotKey builds the cache key for a listing taken at stream sequence
// seq. Because the sequence is part of the key, an entry read at an older
// sequence is never served once a newer notification was published.
func SnapshotKey(seq uint64, filter special.Filter) string {
	return "events:" + strconv.FormatUint(seq, 10) + ":" + filter.Key()
}

// Snapshot returns the cached listing for (seq, filter).
func (c *Cache) Snapshot(seq uint64, filter special.Filter) ([]special.Event, bool) {
	v, ok := c.store.Get(SnapshotKey(seq, filter))
	if !ok {
		return nil, false
	}
	events, ok := v.([]special.Event)
	return events, ok
}

// StoreSnapshot caches a listing for (seq, filter) with the default TTL.
func (c *Cache) StoreSnapshot(seq uint64, filter special.Filter, events []special.Event) {
	c.store.Set(SnapshotKey(seq, filter), events, gocache.DefaultExpiration)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in the cache with custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
type Stats struct {
	ItemCount int `json:"itemCount"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount: c.store.ItemCount(),
	}
}
