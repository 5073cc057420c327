// Package segment implements the on-demand transcoded-segment cache and
// generator, grounded in ferrex-server's transcoding/segments.rs: segments
// are generated lazily on first request, cached in memory up to a byte
// budget, and evicted LRU-first once that budget is exceeded.
package segment

import (
	"container/list"
	"sync"

	"github.com/brightloom/reelvault/internal/models"
)

// cacheEntry is the value stored per list element; the list itself carries
// LRU order (front = most recently used).
type cacheEntry struct {
	key  models.SegmentKey
	data []byte
}

// Cache is a byte-budgeted LRU cache of generated segment payloads. On
// overflow it evicts the least-recently-used entries down to maxBytes/2
// rather than trimming to exactly maxBytes, so a burst of requests doesn't
// immediately re-trigger eviction on the next insert.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	order    *list.List
	index    map[models.SegmentKey]*list.Element
}

func NewCache(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		order:    list.New(),
		index:    make(map[models.SegmentKey]*list.Element),
	}
}

// Get returns a cached segment's bytes and bumps it to most-recently-used.
func (c *Cache) Get(key models.SegmentKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

// Put inserts or replaces a cached segment, evicting LRU entries first if
// the insert would push curBytes over maxBytes.
func (c *Cache) Put(key models.SegmentKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		old := el.Value.(*cacheEntry)
		c.curBytes -= int64(len(old.data))
		old.data = data
		c.curBytes += int64(len(data))
		c.order.MoveToFront(el)
		c.evictLocked()
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, data: data})
	c.index[key] = el
	c.curBytes += int64(len(data))
	c.evictLocked()
}

// evictLocked pops from the back (least-recently-used) until curBytes is at
// or under half the budget, matching the "evict to max_size/2" rule so a
// cache that fills up doesn't thrash on every subsequent insert.
func (c *Cache) evictLocked() {
	if c.curBytes <= c.maxBytes {
		return
	}
	target := c.maxBytes / 2
	for c.curBytes > target {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.order.Remove(back)
		delete(c.index, entry.key)
		c.curBytes -= int64(len(entry.data))
	}
}

// Clear empties the cache, used when a library is removed or a media file's
// source changes underneath an existing set of cached segments.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[models.SegmentKey]*list.Element)
	c.curBytes = 0
}

// Len reports the number of cached segments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Bytes reports current cache occupancy.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}
