package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache is an in-memory read-through cache with LRU eviction and TTL
// expiry. Concurrent loads for the same key are coalesced: the loader
// runs once and every other caller waits for its result.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*list.Element
	lru     *list.List
	cap     int
	ttl     time.Duration
	stats   Stats

	// loads tracks in-flight loader calls keyed by cache key.
	loads map[K]*load[V]
}

type item[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time
}

type load[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// New creates a cache holding at most capacity entries, each expiring
// after ttl.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cache[K, V]{
		entries: make(map[K]*list.Element),
		lru:     list.New(),
		cap:     capacity,
		ttl:     ttl,
		loads:   make(map[K]*load[V]),
	}
}

// Get returns the cached value for key, or the zero value and false if
// the key is absent or expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	it := el.Value.(*item[K, V])
	if time.Now().After(it.deadline) {
		c.dropLocked(el)
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(el)
	c.stats.Hits++
	return it.value, true
}

// Put stores a value with the cache's default TTL.
func (c *Cache[K, V]) Put(key K, value V) {
	c.PutTTL(key, value, c.ttl)
}

// PutTTL stores a value with an explicit TTL, replacing any existing
// entry for the key.
func (c *Cache[K, V]) PutTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		it := el.Value.(*item[K, V])
		it.value = value
		it.deadline = deadline
		return
	}
	el := c.lru.PushFront(&item[K, V]{key: key, value: value, deadline: deadline})
	c.entries[key] = el
	for c.lru.Len() > c.cap {
		c.evictLocked()
	}
}

// GetOrLoad returns the cached value for key, calling loader to fill a
// miss. When several goroutines miss on the same key at once only one
// runs the loader; the rest block until it finishes or their context is
// done. Loader errors are returned to every waiter and never cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	if l, ok := c.loads[key]; ok {
		c.mu.Unlock()
		select {
		case <-l.done:
			return l.val, l.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	l := &load[V]{done: make(chan struct{})}
	c.loads[key] = l
	c.mu.Unlock()

	l.val, l.err = loader(ctx)
	if l.err == nil {
		c.Put(key, l.val)
	}

	c.mu.Lock()
	delete(c.loads, key)
	c.mu.Unlock()
	close(l.done)

	return l.val, l.err
}

// Delete removes a single key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.dropLocked(el)
	}
}

// DeleteWhere removes every entry whose key matches the predicate.
func (c *Cache[K, V]) DeleteWhere(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.entries {
		if match(key) {
			c.dropLocked(el)
		}
	}
}

// RemoveExpired drops all entries past their deadline and reports how
// many were removed. Intended for a periodic sweep.
func (c *Cache[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, el := range c.entries {
		if now.After(el.Value.(*item[K, V]).deadline) {
			c.dropLocked(el)
			removed++
		}
	}
	c.stats.Expired += int64(removed)
	return removed
}

// Flush empties the cache.
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.lru.Init()
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache[K, V]) dropLocked(el *list.Element) {
	delete(c.entries, el.Value.(*item[K, V]).key)
	c.lru.Remove(el)
}

func (c *Cache[K, V]) evictLocked() {
	el := c.lru.Back()
	if el == nil {
		return
	}
	c.dropLocked(el)
	c.stats.Evictions++
}
