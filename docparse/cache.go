// ABOUTME: Content-addressed cache of parsed documents keyed by byte hash.
// ABOUTME: Entries carry their write time; expiry is the pool's decision, checked lazily on read.
package docparse

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cached parse stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// Entry is one cached parse result.
type Entry struct {
	Hash     string
	Doc      *Document
	CachedAt time.Time
}

// Cache stores parsed documents by content hash. Get returns (nil, false, nil)
// on a miss; expired entries are still returned and pruned by the caller via
// Delete.
type Cache interface {
	Get(ctx context.Context, hash string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, hash string) error
}

// MemoryCache is an in-process Cache for tests and single-shot CLI runs.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*Entry)}
}

func (c *MemoryCache) Get(ctx context.Context, hash string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[hash]
	if !ok {
		return nil, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Hash] = entry
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
