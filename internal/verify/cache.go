package verify

import (
	"container/list"
	"sync"
	"time"

	"github.com/albarami/veristat/internal/model"
)

// resultCache is a thread-safe LRU cache keyed by verification fingerprint.
// Identical (task, output, source) inputs hit the cache, which also makes
// repeat verification trivially idempotent.
type resultCache struct {
	mu      sync.RWMutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
}

type cacheItem struct {
	key       string
	value     *model.VerificationResult
	expiresAt time.Time
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *resultCache) Get(key string) *model.VerificationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, exists := c.items[key]
	if !exists {
		return nil
	}

	item := elem.Value.(*cacheItem)
	if time.Now().After(item.expiresAt) {
		return nil
	}

	// Return a copy so callers cannot mutate the cached record.
	result := *item.value
	return &result
}

func (c *resultCache) Set(key string, value *model.VerificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*cacheItem)
		item.value = value
		item.expiresAt = time.Now().Add(c.ttl)
		return
	}

	item := &cacheItem{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheItem).key)
		}
	}
}

func (c *resultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
