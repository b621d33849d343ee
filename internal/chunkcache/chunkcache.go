// Package chunkcache is the bounded (cube_id, chunk_id) → buffer cache
// shared across the compute server's download/compute rendezvous. Its
// eviction admission policy is byte-budget-based (not entry-count-based),
// so the underlying LRU ordering from github.com/hashicorp/golang-lru/v2
// is used purely for recency tracking; the actual evict-until-it-fits
// loop is a custom byte-budget admission check.
package chunkcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"cubed/internal/chunkbuf"
)

// Key identifies one chunk of one cube.
type Key struct {
	CubeID  int
	ChunkID int
}

// Cache is a thread-safe, byte-budgeted mapping from Key to chunkbuf.Buffer.
// A handle returned by Get remains valid after the entry is evicted, since
// chunkbuf.Buffer owns its backing slice independently of the cache's
// internal bookkeeping.
type Cache struct {
	mu          sync.Mutex
	order       *lru.Cache[Key, chunkbuf.Buffer]
	budgetBytes int64
	usedBytes   int64
}

// hugeEntryCap bounds the wrapped LRU's own count-based capacity far above
// any realistic chunk count; Cache's byte-budget loop is what actually
// decides eviction, so the wrapped structure only ever needs to track
// recency order, never enforce its own cap.
const hugeEntryCap = 1 << 20

// New constructs a Cache with the given byte budget. A non-positive budget
// means unbounded (no eviction ever runs).
func New(budgetBytes int64) *Cache {
	order, _ := lru.New[Key, chunkbuf.Buffer](hugeEntryCap)
	return &Cache{order: order, budgetBytes: budgetBytes}
}

// Has reports whether key currently has a cached buffer.
func (c *Cache) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Contains(key)
}

// Get returns the cached buffer for key, or ok=false if absent. A
// successful Get counts as a recency touch for LRU ordering.
func (c *Cache) Get(key Key) (chunkbuf.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Get(key)
}

// Add inserts buf under key, evicting least-recently-used entries until the
// new entry fits the byte budget. An entry larger than the whole budget is
// still stored, as the cache's sole occupant — rejecting it outright would
// make a single oversized chunk permanently uncacheable, which is worse
// than a temporary budget overrun.
func (c *Cache) Add(key Key, buf chunkbuf.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.order.Peek(key); ok {
		c.usedBytes -= old.TotalSizeBytes()
	}

	size := buf.TotalSizeBytes()
	if c.budgetBytes > 0 {
		for c.usedBytes+size > c.budgetBytes && c.order.Len() > 0 {
			_, evicted, ok := c.order.RemoveOldest()
			if !ok {
				break
			}
			c.usedBytes -= evicted.TotalSizeBytes()
		}
	}

	c.order.Add(key, buf)
	c.usedBytes += size
}

// Remove drops key from the cache if present.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.order.Peek(key); ok {
		c.usedBytes -= old.TotalSizeBytes()
		c.order.Remove(key)
	}
}

// TotalSizeBytes returns the sum of TotalSizeBytes() over every cached
// buffer.
func (c *Cache) TotalSizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// BudgetBytes returns the configured byte budget (0 means unbounded).
func (c *Cache) BudgetBytes() int64 {
	return c.budgetBytes
}
