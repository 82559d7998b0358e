// Package cache is the process-local record cache fronting point lookups.
// Entries live for a fixed TTL; every write path invalidates (or replaces) the
// touched id synchronously, so within one process a read after an
// acknowledged write never sees the pre-write value. Listings are never
// cached.
package cache

import (
	"sync"
	"time"

	"mediagen/internal/domain"
)

// DefaultTTL bounds how long a cached record may serve reads.
const DefaultTTL = 5 * time.Minute

type entry struct {
	rec   *domain.GenerationRecord
	until time.Time
}

// RecordCache is safe for concurrent use. The zero value is not usable; call
// New.
type RecordCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New builds a cache with the given TTL; ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RecordCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached record, or nil on miss or expiry. Callers
// own the returned value and may mutate it freely.
func (c *RecordCache) Get(id string) *domain.GenerationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		c.misses++
		return nil
	}
	if c.now().After(e.until) {
		delete(c.entries, id)
		c.misses++
		return nil
	}
	c.hits++
	return e.rec.Clone()
}

// Put stores a copy of the record under its id, restarting the TTL.
func (c *RecordCache) Put(rec *domain.GenerationRecord) {
	if rec == nil || rec.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[rec.ID] = &entry{rec: rec.Clone(), until: c.now().Add(c.ttl)}
}

// Invalidate drops the entry for id, if any.
func (c *RecordCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// InvalidateMany drops every given id; the sweeper uses it after batch
// operations.
func (c *RecordCache) InvalidateMany(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
}

// Purge empties the cache.
func (c *RecordCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len reports the live entry count, expired entries included until touched.
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counters.
func (c *RecordCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
