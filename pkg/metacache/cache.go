// ABOUTME: Read-through cache for per-collection schema and index metadata
// ABOUTME: Single-flight fetch coalescing with hit/miss counters

package metacache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMetadataUnavailable indicates a failed metadata fetch. Non-fatal for
// the owning group: callers proceed without schema-aware context.
var ErrMetadataUnavailable = errors.New("metacache: metadata unavailable")

// IndexKey is one field of an index definition, in index order
type IndexKey struct {
	Field string
	Spec  string // "1", "-1", "text", "hashed", ...
}

// IndexInfo describes one index on a collection
type IndexInfo struct {
	Name   string
	Keys   []IndexKey
	Unique bool
	Sparse bool
}

// Entry holds the cached metadata for one collection. Created on first
// miss, read-only thereafter for the run's lifetime.
type Entry struct {
	Collection string
	Schema     map[string]string // field name -> type name, "mixed" on conflict
	Indexes    []IndexInfo
	FetchedAt  time.Time
}

// Fetcher is the injected metadata-fetch collaborator
type Fetcher interface {
	FetchMetadata(ctx context.Context, collection string) (*Entry, error)
}

// Stats reports cache effectiveness counters
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a read-through metadata cache scoped to one analysis run. It
// assumes the schema and index layout are stable for the run's duration,
// so entries have no TTL and are never invalidated. Safe for concurrent
// use; concurrent Gets for an unresolved key coalesce into a single fetch.
type Cache struct {
	fetcher Fetcher

	mu      sync.RWMutex
	entries map[string]*Entry

	flight singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache backed by the given fetcher
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[string]*Entry),
	}
}

// Get returns the metadata entry for a collection, fetching it on first
// access. All callers for the same key observe the same Entry. A failed
// fetch surfaces ErrMetadataUnavailable and caches nothing, so a later
// call may retry.
func (c *Cache) Get(ctx context.Context, collection string) (*Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[collection]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return entry, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(collection, func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have already
		// stored the entry between our read miss and this call.
		c.mu.RLock()
		entry, ok := c.entries[collection]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		fetched, err := c.fetcher.FetchMetadata(ctx, collection)
		if err != nil {
			return nil, err
		}
		if fetched.FetchedAt.IsZero() {
			fetched.FetchedAt = time.Now()
		}

		c.mu.Lock()
		c.entries[collection] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q: %v", ErrMetadataUnavailable, collection, err)
	}
	return v.(*Entry), nil
}

// Stats returns the hit/miss counters accumulated so far
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Len reports the number of cached collections
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
