package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/apierr"
)

func fastConfig(maxRetries int, onRetry func(int, *apierr.Error)) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		OnRetry:    onRetry,
	}
}

func TestWithRetry_SucceedsImmediately(t *testing.T) {
	calls, retries := 0, 0
	fn := WithRetry(func(ctx context.Context) (string, error) {
		calls++
		return "roses", nil
	}, fastConfig(3, func(int, *apierr.Error) { retries++ }))

	got, err := fn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "roses" || calls != 1 || retries != 0 {
		t.Errorf("got %q, calls=%d, retries=%d; want roses, 1, 0", got, calls, retries)
	}

	t.Log("✓ Successful call is not retried")
}

func TestWithRetry_ServerErrorThenSuccess(t *testing.T) {
	for n := 0; n < 3; n++ {
		calls := 0
		var attempts []int
		fn := WithRetry(func(ctx context.Context) (int, error) {
			calls++
			if calls <= n {
				return 0, &apierr.StatusError{Status: 500}
			}
			return 42, nil
		}, fastConfig(3, func(attempt int, err *apierr.Error) {
			if err.Kind != apierr.KindServer {
				t.Errorf("OnRetry got kind %s, want server", err.Kind)
			}
			attempts = append(attempts, attempt)
		}))

		got, err := fn(context.Background())
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if got != 42 {
			t.Errorf("n=%d: got %d, want 42", n, got)
		}
		if len(attempts) != n {
			t.Errorf("n=%d: OnRetry called %d times", n, len(attempts))
		}
		for i, a := range attempts {
			if a != i+1 {
				t.Errorf("n=%d: attempt %d reported as %d", n, i+1, a)
			}
		}
	}

	t.Log("✓ Transient server errors are retried until success")
}

func TestWithRetry_ClientErrorNotRetried(t *testing.T) {
	calls, retries := 0, 0
	fn := WithRetry(func(ctx context.Context) (int, error) {
		calls++
		return 0, &apierr.StatusError{Status: 400, Message: "bad payload"}
	}, fastConfig(3, func(int, *apierr.Error) { retries++ }))

	_, err := fn(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || retries != 0 {
		t.Errorf("calls=%d retries=%d, want 1 and 0", calls, retries)
	}

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindClient {
		t.Errorf("expected classified client error, got %v", err)
	}

	t.Log("✓ Client errors fail immediately")
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	fn := WithRetry(func(ctx context.Context) (int, error) {
		calls++
		return 0, &apierr.StatusError{Status: 502}
	}, fastConfig(2, nil))

	_, err := fn(context.Background())
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.UserMessage() != "Server error, please try again later" {
		t.Errorf("unexpected user message %q", apiErr.UserMessage())
	}
}

func TestRetry_ZeroValueConfigMakesOneAttempt(t *testing.T) {
	for _, cfg := range []RetryConfig{{}, {MaxRetries: -2}} {
		calls := 0
		_, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
			calls++
			return 0, &apierr.StatusError{Status: 503}
		})
		if err == nil {
			t.Error("expected the server error back")
		}
		if calls != 1 {
			t.Errorf("MaxRetries=%d: calls = %d, want 1", cfg.MaxRetries, calls)
		}
	}

	if DefaultRetryConfig().MaxRetries != 3 {
		t.Errorf("default MaxRetries = %d, want 3", DefaultRetryConfig().MaxRetries)
	}

	t.Log("✓ Zero or negative MaxRetries never retries")
}

func TestWithRetry_CustomCondition(t *testing.T) {
	calls := 0
	cfg := fastConfig(2, nil)
	cfg.RetryCondition = func(err *apierr.Error) bool { return err.Status == 409 }

	_, _ = Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, &apierr.StatusError{Status: 409}
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, RetryDelay: time.Hour, MaxDelay: time.Hour}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, cfg, func(ctx context.Context) (int, error) {
		return 0, &apierr.StatusError{Status: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("retry did not stop on cancellation")
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second}, // capped
	}

	for _, tt := range tests {
		got := calculateBackoff(tt.attempt, 100*time.Millisecond, time.Second, 0)
		if got != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.expected)
		}
	}

	for i := 0; i < 100; i++ {
		got := calculateBackoff(1, 100*time.Millisecond, time.Second, 0.1)
		if got < 180*time.Millisecond || got > 220*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±10%% of 200ms", got)
		}
	}
}
