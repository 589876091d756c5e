package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// entry represents an item in the cache
type entry struct {
	key      string
	value    any
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// MemoryCache is a bounded key/value store with per-entry expiry.
// When full, the earliest-inserted entry is evicted; overwriting a key
// refreshes its value and TTL but keeps its insertion position.
type MemoryCache struct {
	maxSize       int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = oldest

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	reported    int64 // evictions already reported

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a cache and starts its sweeper.
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		maxSize:       DefaultMaxSize,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		items:         make(map[string]*list.Element),
		order:         list.New(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		go c.sweep()
	}

	return c
}

// NewAPICache creates the cache used for backend responses. Its default
// TTL is shorter than the general-purpose default.
func NewAPICache(opts ...Option) *MemoryCache {
	return NewMemoryCache(append([]Option{WithDefaultTTL(DefaultAPITTL)}, opts...)...)
}

// Set inserts or overwrites key. ttl <= 0 uses the cache default.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.storedAt = now
		e.ttl = ttl
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}

	el := c.order.PushBack(&entry{key: key, value: value, storedAt: now, ttl: ttl})
	c.items[key] = el
}

// Get returns the value for key if present and fresh. An expired entry
// is removed before reporting absence.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if e.expired(c.now()) {
		c.remove(el)
		c.expirations++
		c.misses++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Has reports whether Get would succeed.
func (c *MemoryCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *MemoryCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// DeletePrefix removes every key starting with prefix and returns how
// many were removed.
func (c *MemoryCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if strings.HasPrefix(el.Value.(*entry).key, prefix) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear empties the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of physically stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}

	return Stats{
		Size:        c.order.Len(),
		MaxSize:     c.maxSize,
		Keys:        keys,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Report publishes the current size and evictions since the last call.
func (c *MemoryCache) Report(ctx context.Context, m *observability.Metrics, name string) {
	c.mu.Lock()
	size := c.order.Len()
	delta := c.evictions - c.reported
	c.reported = c.evictions
	c.mu.Unlock()

	m.RecordCacheSize(ctx, name, size, delta)
}

// Close stops the sweeper. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

// remove unlinks an element (caller must hold lock)
func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// evictOldest removes the earliest-inserted entry (caller must hold lock)
func (c *MemoryCache) evictOldest() {
	if el := c.order.Front(); el != nil {
		c.remove(el)
		c.evictions++
	}
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// purgeExpired removes all expired entries and returns the count
func (c *MemoryCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).expired(now) {
			c.remove(el)
			removed++
		}
		el = next
	}
	c.expirations += int64(removed)
	return removed
}
