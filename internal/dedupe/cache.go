// ABOUTME: Thread-safe, size-bounded cache of seen stream fragment markers.
// ABOUTME: Used by the stream dispatcher to suppress duplicate fragment delivery.

package dedupe

import (
	"container/list"
	"sync"
)

// Cache tracks fragment markers that have already been applied to a stream.
// It is size-limited: when full, the oldest marker is evicted, which bounds
// memory for arbitrarily long streams. Transports replay recent fragments on
// reconnect, so recency is exactly the window that matters.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*list.Element
	order   *list.List // markers in insertion order (oldest at front)
	maxSize int
}

// New creates a marker cache holding at most maxSize entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Check returns true if the marker has been seen.
func (c *Cache) Check(marker string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.seen[marker]
	return ok
}

// CheckAndMark atomically checks whether a marker has been seen and records
// it if not. Returns true if the marker was already seen (duplicate), false
// if it is new and now marked. This prevents TOCTOU races that could occur
// with separate Check/Mark calls.
func (c *Cache) CheckAndMark(marker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[marker]; ok {
		return true
	}
	c.markLocked(marker)
	return false
}

// Mark records that a marker has been seen. If the cache is at capacity,
// the oldest entry is evicted to make room.
func (c *Cache) Mark(marker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(marker)
}

// markLocked is the internal mark implementation. Must be called with mu held.
func (c *Cache) markLocked(marker string) {
	if elem, exists := c.seen[marker]; exists {
		c.order.MoveToBack(elem)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	c.seen[marker] = c.order.PushBack(marker)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	marker, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, marker)
}

// Len returns the number of markers currently tracked.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}
