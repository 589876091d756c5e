package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// MemoOption configures a Memoized function
type MemoOption func(*memoConfig)

type memoConfig struct {
	ttl     time.Duration
	prefix  string
	name    string
	metrics *observability.Metrics
}

// WithTTL overrides the cache default TTL for memoized results.
func WithTTL(d time.Duration) MemoOption {
	return func(c *memoConfig) { c.ttl = d }
}

// WithKeyPrefix namespaces derived keys, e.g. "products:".
func WithKeyPrefix(p string) MemoOption {
	return func(c *memoConfig) { c.prefix = p }
}

// WithName labels hit/miss metrics. Defaults to the key prefix.
func WithName(name string) MemoOption {
	return func(c *memoConfig) { c.name = name }
}

// WithMetrics reports hits and misses.
func WithMetrics(m *observability.Metrics) MemoOption {
	return func(c *memoConfig) { c.metrics = m }
}

// Memoized wraps fn with a MemoryCache. Concurrent misses on one key
// share a single call. Each key carries a generation that Invalidate
// bumps; a call that started under an older generation still returns
// its result to its callers but does not write it to the cache.
type Memoized[A, T any] struct {
	cache *MemoryCache
	fn    func(context.Context, A) (T, error)
	keyFn func(A) string
	cfg   memoConfig

	group singleflight.Group

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// WithCache memoizes fn in c, deriving keys with keyFn. Only successful
// results are stored.
func WithCache[A, T any](c *MemoryCache, fn func(context.Context, A) (T, error), keyFn func(A) string, opts ...MemoOption) *Memoized[A, T] {
	cfg := memoConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = cfg.prefix
	}

	return &Memoized[A, T]{
		cache: c,
		fn:    fn,
		keyFn: keyFn,
		cfg:   cfg,
		gens:  make(map[string]uint64),
	}
}

// Call returns the cached result for arg or computes it.
func (m *Memoized[A, T]) Call(ctx context.Context, arg A) (T, error) {
	key := m.Key(arg)

	if v, ok := m.cache.Get(key); ok {
		if typed, ok := as[T](v); ok {
			m.cfg.metrics.RecordCacheHit(ctx, m.cfg.name)
			return typed, nil
		}
	}
	m.cfg.metrics.RecordCacheMiss(ctx, m.cfg.name)

	fence := m.fence(key)
	flightKey := fmt.Sprintf("%s#%d.%d", key, fence.epoch, fence.gen)

	// The shared call runs with the first caller's context.
	v, err, _ := m.group.Do(flightKey, func() (any, error) {
		res, err := m.fn(ctx, arg)
		if err != nil {
			return res, err
		}
		m.store(key, fence, res)
		return res, nil
	})

	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := as[T](v)
	return typed, nil
}

// as converts a stored value back to T. A nil interface result comes back
// as the zero T.
func as[T any](v any) (T, bool) {
	if v == nil {
		var zero T
		return zero, true
	}
	typed, ok := v.(T)
	return typed, ok
}

// Key returns the cache key derived for arg.
func (m *Memoized[A, T]) Key(arg A) string {
	return m.cfg.prefix + m.keyFn(arg)
}

// Invalidate drops the cached result for arg and fences in-flight calls.
func (m *Memoized[A, T]) Invalidate(arg A) {
	m.InvalidateKey(m.keyFn(arg))
}

// InvalidateKey is Invalidate for an already-derived key (without prefix).
func (m *Memoized[A, T]) InvalidateKey(key string) {
	full := m.cfg.prefix + key

	m.mu.Lock()
	m.gens[full]++
	m.mu.Unlock()

	m.cache.Delete(full)
}

// InvalidateAll drops every result under this function's key prefix and
// fences all in-flight calls.
func (m *Memoized[A, T]) InvalidateAll() {
	m.mu.Lock()
	m.epoch++
	m.gens = make(map[string]uint64)
	m.mu.Unlock()

	if m.cfg.prefix == "" {
		m.cache.Clear()
		return
	}
	m.cache.DeletePrefix(m.cfg.prefix)
}

type fence struct {
	epoch uint64
	gen   uint64
}

func (m *Memoized[A, T]) fence(key string) fence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fence{epoch: m.epoch, gen: m.gens[key]}
}

// store writes res only if no invalidation happened since f was taken.
func (m *Memoized[A, T]) store(key string, f fence, res T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != f.epoch || m.gens[key] != f.gen {
		return
	}
	m.cache.Set(key, res, m.cfg.ttl)
}
