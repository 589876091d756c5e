// Package cache provides a bounded in-memory TTL cache, a memoizing
// decorator with request fencing, and startup cache warming.
package cache

import "time"

const (
	// DefaultMaxSize is the entry cap when WithMaxSize is not given
	DefaultMaxSize = 100

	// DefaultTTL applies to general-purpose caches
	DefaultTTL = 5 * time.Minute

	// DefaultAPITTL applies to the API response cache
	DefaultAPITTL = 2 * time.Minute

	// DefaultSweepInterval is how often expired entries are purged
	DefaultSweepInterval = time.Minute
)

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithMaxSize caps the number of entries. Values <= 0 are ignored.
func WithMaxSize(n int) Option {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithDefaultTTL sets the TTL used when Set is called with ttl <= 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *MemoryCache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithSweepInterval sets the background sweep period. A negative value
// disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(c *MemoryCache) {
		if d != 0 {
			c.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// Stats is a point-in-time view of a MemoryCache.
type Stats struct {
	Size        int
	MaxSize     int
	Keys        []string // insertion order
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}
