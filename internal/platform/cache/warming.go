package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/worker"
)

// WarmupProvider pre-populates a cache at startup. Implementations
// should be idempotent.
type WarmupProvider interface {
	// Name returns a human-readable name for logging purposes
	Name() string

	Warmup(ctx context.Context) error
}

// ProviderFunc adapts a function to WarmupProvider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context) error
}

func (p ProviderFunc) Name() string                     { return p.ProviderName }
func (p ProviderFunc) Warmup(ctx context.Context) error { return p.Fn(ctx) }

// WarmupConfig configures the cache warming behavior.
type WarmupConfig struct {
	// Timeout bounds the whole warmup
	Timeout time.Duration

	// ContinueOnError keeps warming after a provider fails (sequential mode)
	ContinueOnError bool

	// Parallel runs providers on a worker pool
	Parallel bool

	// Workers sizes the pool in parallel mode
	Workers int
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
		Workers:         4,
	}
}

// WarmupResult contains the result of warming a single provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// WarmupResults contains the aggregate results of cache warming.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any provider failed during warmup.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer handles cache warming operations.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Warmer{
		logger: logger,
		config: config,
	}
}

// RegisterProvider adds a warmup provider to the warmer.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup runs all registered providers and never fails; errors are
// reported in the results.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{
		Results: make([]WarmupResult, 0, len(w.providers)),
	}

	if len(w.providers) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.warmupParallel(warmupCtx)
	} else {
		results.Results = w.warmupSequential(warmupCtx)
	}

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}

	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.LogWarn(ctx, fmt.Sprintf("Cache warmup completed with %d/%d errors in %v",
			results.Errors, len(w.providers), results.TotalTime))
	} else {
		w.logger.LogInfo(ctx, fmt.Sprintf("Cache warmup completed successfully (%d providers) in %v",
			len(w.providers), results.TotalTime))
	}

	return results
}

// warmupParallel runs every provider on a short-lived worker pool.
func (w *Warmer) warmupParallel(ctx context.Context) []WarmupResult {
	pool := worker.NewPoolWithConfig(ctx, worker.PoolConfig{
		Workers:   w.config.Workers,
		QueueSize: len(w.providers),
	})
	defer pool.Close()

	jobs := make([]worker.Job, 0, len(w.providers))
	for _, provider := range w.providers {
		p := provider
		jobs = append(jobs, worker.Job{
			ID: p.Name(),
			Execute: func(ctx context.Context) (any, error) {
				r := w.warmupProvider(ctx, p)
				return r, r.Err
			},
		})
	}

	results := make([]WarmupResult, 0, len(jobs))
	for _, r := range pool.SubmitAndWait(jobs) {
		if wr, ok := r.Value.(WarmupResult); ok {
			results = append(results, wr)
			continue
		}
		results = append(results, WarmupResult{Provider: r.JobID, Err: r.Err})
	}

	stats := pool.Stats()
	w.logger.LogDebug(ctx, "Warmup pool drained",
		"submitted", stats.JobsSubmitted,
		"completed", stats.JobsCompleted,
		"failed", stats.JobsFailed,
	)
	return results
}

// warmupSequential warms providers one at a time.
func (w *Warmer) warmupSequential(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, 0, len(w.providers))

	for _, provider := range w.providers {
		result := w.warmupProvider(ctx, provider)
		results = append(results, result)

		if result.Err != nil && !w.config.ContinueOnError {
			break
		}
	}

	return results
}

func (w *Warmer) warmupProvider(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	w.logger.LogDebug(ctx, "Warming cache", "provider", name)

	err := provider.Warmup(ctx)
	duration := time.Since(start)

	if err != nil {
		w.logger.LogWarn(ctx, "Cache warmup failed", "provider", name, "error", err, "duration", duration)
	} else {
		w.logger.LogDebug(ctx, "Cache warmup completed", "provider", name, "duration", duration)
	}

	return WarmupResult{
		Provider: name,
		Duration: duration,
		Err:      err,
	}
}
