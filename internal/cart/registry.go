package cart

import (
	"context"
	"sync"
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/cache"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

const (
	// DefaultMaxSessions caps the loaded stores held by a Registry
	DefaultMaxSessions = 10000

	// DefaultIdleTTL drops a store that has not been used for this long
	DefaultIdleTTL = 30 * time.Minute
)

// RegistryOption configures a Registry
type RegistryOption func(*registryOptions)

type registryOptions struct {
	maxSessions int
	idleTTL     time.Duration
	clock       func() time.Time
}

// WithMaxSessions caps the number of loaded stores. Past the cap the
// earliest-loaded store is dropped.
func WithMaxSessions(n int) RegistryOption {
	return func(o *registryOptions) {
		if n > 0 {
			o.maxSessions = n
		}
	}
}

// WithIdleTTL sets how long an unused store stays loaded
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		if d > 0 {
			o.idleTTL = d
		}
	}
}

// WithRegistryClock replaces time.Now, mainly for tests
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

// Registry holds one Store per session, created and rehydrated on first
// use. Loaded stores live in a bounded TTL cache: a dropped store loses
// nothing, the next request reloads it from the persister.
type Registry struct {
	baseKey   string
	persister Persister
	logger    *observability.Logger
	metrics   *observability.Metrics
	clock     func() time.Time
	idleTTL   time.Duration

	mu     sync.Mutex
	stores *cache.MemoryCache
}

// NewRegistry creates an empty registry
func NewRegistry(baseKey string, persister Persister, logger *observability.Logger, metrics *observability.Metrics, opts ...RegistryOption) *Registry {
	if baseKey == "" {
		baseKey = DefaultStorageKey
	}
	o := registryOptions{
		maxSessions: DefaultMaxSessions,
		idleTTL:     DefaultIdleTTL,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Registry{
		baseKey:   baseKey,
		persister: persister,
		logger:    logger,
		metrics:   metrics,
		clock:     o.clock,
		idleTTL:   o.idleTTL,
		stores: cache.NewMemoryCache(
			cache.WithMaxSize(o.maxSessions),
			cache.WithDefaultTTL(o.idleTTL),
			cache.WithClock(o.clock),
		),
	}
}

// Get returns the store for session, loading it if needed. The lock is
// held across the load so one session never gets two stores. Every hit
// restarts the store's idle timer.
func (r *Registry) Get(ctx context.Context, session string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.stores.Get(session); ok {
		s := v.(*Store)
		r.stores.Set(session, s, r.idleTTL)
		return s, nil
	}

	s, err := NewStore(ctx, Config{
		Key:       StorageKey(r.baseKey, session),
		Persister: r.persister,
		Logger:    r.logger,
		Metrics:   r.metrics,
		Clock:     r.clock,
	})
	if err != nil {
		return nil, err
	}
	r.stores.Set(session, s, r.idleTTL)
	return s, nil
}

// Forget drops the in-memory store for session; the persisted cart stays.
func (r *Registry) Forget(session string) {
	r.mu.Lock()
	r.stores.Delete(session)
	r.mu.Unlock()
}

// Len returns the number of loaded stores
func (r *Registry) Len() int {
	return r.stores.Len()
}

// Report publishes the loaded store count
func (r *Registry) Report(ctx context.Context) {
	r.stores.Report(ctx, r.metrics, "cart_sessions")
}

// Close stops the idle sweeper
func (r *Registry) Close() error {
	return r.stores.Close()
}

// Persister returns the backend shared by all stores
func (r *Registry) Persister() Persister {
	return r.persister
}
