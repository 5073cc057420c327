package segment

import (
	"testing"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/models"
)

func key(n int) models.SegmentKey {
	return models.SegmentKey{JobID: uuid.Nil, SegmentNumber: n}
}

func TestCacheGetPutRoundTrip(t *testing.T) {
	c := NewCache(1024)
	c.Put(key(0), []byte("abc"))
	data, ok := c.Get(key(0))
	if !ok || string(data) != "abc" {
		t.Fatalf("got %q, %v", data, ok)
	}
}

func TestCacheEvictsLRUToHalfBudget(t *testing.T) {
	c := NewCache(100)
	for i := 0; i < 5; i++ {
		c.Put(key(i), make([]byte, 30))
	}
	// The 4th insert reaches 120 bytes, over the 100-byte budget, and evicts
	// key(0..2) down to 30 bytes (<=50). The 5th insert brings the cache to
	// 60 bytes, within budget, so nothing more is evicted.
	if c.Bytes() != 60 {
		t.Fatalf("expected 60 bytes (key(3) and key(4)) after eviction, got %d", c.Bytes())
	}
	if _, ok := c.Get(key(0)); ok {
		t.Errorf("expected key(0) to have been evicted as least-recently-used")
	}
	if _, ok := c.Get(key(4)); !ok {
		t.Errorf("expected key(4) (most recently inserted) to survive eviction")
	}
}

func TestCacheGetBumpsRecency(t *testing.T) {
	c := NewCache(100)
	c.Put(key(0), make([]byte, 5))
	c.Put(key(1), make([]byte, 60))
	c.Get(key(0)) // touch key(0) so it is no longer the LRU entry
	c.Put(key(2), make([]byte, 40))
	// 105 bytes exceeds the 100-byte budget. Evicting the LRU entry key(1)
	// leaves 45 bytes, under the 50-byte target, so eviction stops there.
	// Without the touch, key(0) would have been evicted first.
	if _, ok := c.Get(key(0)); !ok {
		t.Errorf("expected recently-touched key(0) to survive")
	}
	if _, ok := c.Get(key(1)); ok {
		t.Errorf("expected untouched key(1) to be evicted as least-recently-used")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(1024)
	c.Put(key(0), []byte("x"))
	c.Clear()
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("expected empty cache after Clear, got len=%d bytes=%d", c.Len(), c.Bytes())
	}
}
