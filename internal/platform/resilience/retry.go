package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/apierr"
)

// RetryConfig holds retry configuration. The zero value makes a single
// attempt: MaxRetries is taken literally, so 0 disables retrying while
// the delays fall back to defaults. Start from DefaultRetryConfig to get
// retries.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt, 0 or less means none
	RetryDelay time.Duration // base delay, doubled per retry
	MaxDelay   time.Duration // cap on a single delay
	Jitter     float64       // 0.0 to 1.0

	// RetryCondition decides whether a classified failure is transient.
	// Defaults to apierr.IsRetryable.
	RetryCondition func(err *apierr.Error) bool

	// OnRetry is called before each retry with the 1-based retry number.
	OnRetry func(attempt int, err *apierr.Error)
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     0.1,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.RetryCondition == nil {
		c.RetryCondition = func(err *apierr.Error) bool { return apierr.IsRetryable(err) }
	}
	return c
}

// WithRetry decorates fn so failed calls are re-issued with exponential
// backoff while the failure is classified retryable.
func WithRetry[T any](fn func(context.Context) (T, error), cfg RetryConfig) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Retry(ctx, cfg, fn)
	}
}

// Retry executes fn, retrying classified transient failures. The returned
// error is always an *apierr.Error (or a wrapped context error when ctx
// ends during backoff).
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		classified := apierr.Classify(err)

		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry cancelled: %w", classified)
		}

		if attempt >= cfg.MaxRetries || !cfg.RetryCondition(classified) {
			return zero, classified
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, classified)
		}

		delay := calculateBackoff(attempt, cfg.RetryDelay, cfg.MaxDelay, cfg.Jitter)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}
}

// calculateBackoff returns baseDelay * 2^attempt, capped at maxDelay, with
// +/- jitter percent applied.
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration, jitter float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter > 0 {
		jitterAmount := delay * jitter
		delay = delay - jitterAmount + (rand.Float64() * jitterAmount * 2)
	}

	return time.Duration(delay)
}
