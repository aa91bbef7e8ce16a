// Package packcache memoizes built packs per canonical selection key.
//
// Selections that are literally equal share an entry; equivalent selections
// spelled differently do not. Entries are evicted least recently used first
// once MaxSize is reached, and can be purged by predicate when the
// variables they cover change.
package packcache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Config configures a Cache.
type Config struct {
	// MaxSize is the maximum number of cached packs.
	// If 0 or negative, the cache is unbounded.
	MaxSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxSize: 256}
}

// Cache is a keyed memo of packs. It is safe for concurrent use, but a
// value handed out by Get is shared with every other caller of the same
// key.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int

	// Stats
	hits   atomic.Uint64
	misses atomic.Uint64
	builds atomic.Uint64
	evicts atomic.Uint64
	purges atomic.Uint64
}

type entry[V any] struct {
	key   string
	value V
}

// New creates a cache.
func New[V any](cfg Config) *Cache[V] {
	return &Cache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: cfg.MaxSize,
	}
}

// Get returns the value cached under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry[V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put stores value under key, replacing any previous value.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		c.order.MoveToFront(el)
		return
	}
	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictLRU()
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
}

// GetOrBuild returns the cached value for key, calling build on a miss and
// caching its result. A failed build caches nothing.
func (c *Cache[V]) GetOrBuild(key string, build func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := build()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.builds.Add(1)
	c.Put(key, v)
	return v, false, nil
}

// evictLRU removes the least recently used entry.
// Must be called with lock held.
func (c *Cache[V]) evictLRU() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
	c.evicts.Add(1)
}

// DeleteFunc removes every entry for which del returns true and reports how
// many were removed.
func (c *Cache[V]) DeleteFunc(del func(key string, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if del(e.key, e.value) {
			c.order.Remove(el)
			delete(c.items, e.key)
			n++
		}
		el = next
	}
	c.purges.Add(uint64(n))
	return n
}

// InvalidateAll clears the cache.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purges.Add(uint64(len(c.items)))
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the cached keys, most recently used first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Size:   c.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Builds: c.builds.Load(),
		Evicts: c.evicts.Load(),
		Purges: c.purges.Load(),
	}
}

// Stats contains cache statistics.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
	Builds uint64
	Evicts uint64
	Purges uint64
}

// HitRate returns the cache hit rate (0.0-1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
