// Package cache implements the in-memory cache and tag index of spec
// §4.7: an ID -> CacheEntry map plus a bidirectional tag index, with
// stale-marking invalidation that preserves stale-while-revalidate
// semantics. Grounded on internal/storage/{sqlite,dolt}/blocked_cache.go's
// full-rebuild-on-invalidate derived-cache pattern: rather than patch the
// tag index incrementally on every mutation, RemoveTags and Delete always
// rebuild the touched tag buckets from the entry's current tag set, which
// is simpler and provably consistent (the same trade-off blocked_cache.go
// makes: "full rebuild... simpler implementation than incremental
// updates... guarantees consistency").
package cache

import (
	"sync"
	"time"

	"github.com/stratadb/core/query"
)

// Entry is spec §3's CacheEntry<T>.
type Entry[T any] struct {
	Item     T
	Tags     map[string]bool
	CachedAt time.Time
	StaleAt  *time.Time
}

func (e *Entry[T]) isStale() bool { return e.StaleAt != nil }

// Stats summarizes cache contents, derivable from the tag index per
// spec §4.7.
type Stats struct {
	Entries int
	Tags    int
	Stale   int
}

// Cache is a generic ID -> Entry store with a tag index.
type Cache[T any, ID comparable] struct {
	mu       sync.RWMutex
	entries  map[ID]*Entry[T]
	tagIndex map[string]map[ID]bool
	now      func() time.Time
}

// New constructs an empty Cache. now defaults to time.Now if nil (tests
// may inject a fixed clock).
func New[T any, ID comparable](now func() time.Time) *Cache[T, ID] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T, ID]{
		entries:  make(map[ID]*Entry[T]),
		tagIndex: make(map[string]map[ID]bool),
		now:      now,
	}
}

// Put inserts or replaces an entry, refreshing CachedAt and clearing any
// staleness mark.
func (c *Cache[T, ID]) Put(id ID, item T, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFromTagIndexLocked(id)

	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
		if c.tagIndex[t] == nil {
			c.tagIndex[t] = make(map[ID]bool)
		}
		c.tagIndex[t][id] = true
	}
	c.entries[id] = &Entry[T]{Item: item, Tags: tagSet, CachedAt: c.now()}
}

// Get returns the entry for id, including stale entries (the cache
// surfaces staleness to the caller rather than hiding it).
func (c *Cache[T, ID]) Get(id ID) (*Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Delete hard-removes an entry and its tag-index membership. Idempotent.
func (c *Cache[T, ID]) Delete(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFromTagIndexLocked(id)
	delete(c.entries, id)
}

func (c *Cache[T, ID]) removeFromTagIndexLocked(id ID) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	for t := range e.Tags {
		if bucket := c.tagIndex[t]; bucket != nil {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(c.tagIndex, t)
			}
		}
	}
}

// Invalidate marks the given ids stale. Idempotent: re-marking an
// already-stale entry is a no-op.
func (c *Cache[T, ID]) Invalidate(ids []ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, id := range ids {
		if e, ok := c.entries[id]; ok && e.StaleAt == nil {
			t := now
			e.StaleAt = &t
		}
	}
}

// InvalidateByTags marks stale every entry carrying any of the given
// tags.
func (c *Cache[T, ID]) InvalidateByTags(tags []string) []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	seen := make(map[ID]bool)
	var touched []ID
	for _, t := range tags {
		for id := range c.tagIndex[t] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if e, ok := c.entries[id]; ok {
				if e.StaleAt == nil {
					v := now
					e.StaleAt = &v
				}
				touched = append(touched, id)
			}
		}
	}
	return touched
}

// InvalidateWhere marks stale every entry whose record (as produced by
// toRecord) matches q, evaluated against a snapshot.
func (c *Cache[T, ID]) InvalidateWhere(q query.Query, toRecord func(T) query.Record) []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var touched []ID
	for id, e := range c.entries {
		if q.Matches(toRecord(e.Item)) {
			if e.StaleAt == nil {
				v := now
				e.StaleAt = &v
			}
			touched = append(touched, id)
		}
	}
	return touched
}

// AddTags adds tags to an existing entry and updates the tag index.
func (c *Cache[T, ID]) AddTags(id ID, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	for _, t := range tags {
		e.Tags[t] = true
		if c.tagIndex[t] == nil {
			c.tagIndex[t] = make(map[ID]bool)
		}
		c.tagIndex[t][id] = true
	}
}

// RemoveTags removes tags from an entry and rebuilds its tag-index
// membership (full-rebuild, not incremental patching — see package doc).
func (c *Cache[T, ID]) RemoveTags(id ID, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	for _, t := range tags {
		delete(e.Tags, t)
	}
	c.removeFromTagIndexLocked(id)
	for t := range e.Tags {
		if c.tagIndex[t] == nil {
			c.tagIndex[t] = make(map[ID]bool)
		}
		c.tagIndex[t][id] = true
	}
}

// Snapshot returns every non-deleted item, for the cache-fast-path query
// evaluator.
func (c *Cache[T, ID]) Snapshot() map[ID]T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[ID]T, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.Item
	}
	return out
}

// Stats counts entries and stale entries from the entry map and distinct
// tags from the tag index.
func (c *Cache[T, ID]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stale := 0
	for _, e := range c.entries {
		if e.isStale() {
			stale++
		}
	}
	return Stats{Entries: len(c.entries), Tags: len(c.tagIndex), Stale: stale}
}
