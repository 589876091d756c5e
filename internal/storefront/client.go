// Package storefront is the client for the shop's REST backend. Every call
// goes through a circuit breaker, a classified retry loop and a rate
// limiter; catalogue reads are memoized in the API cache.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/cache"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

const maxResponseBytes = 10 << 20

// Config holds Client configuration. Only BaseURL is required.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	Tokens         TokenSource
	OnUnauthorized func(ctx context.Context)

	Retry           resilience.RetryConfig
	OrderMaxRetries int

	Cache        *cache.MemoryCache
	DashboardTTL time.Duration

	RateLimitRPM   int
	RateLimitBurst int
	CircuitBreaker *resilience.CircuitBreaker

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
}

// Client talks to the shop backend
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func(ctx context.Context)
	retryCfg       resilience.RetryConfig
	orderRetries   int
	limiter        *resilience.RateLimiter
	cb             *resilience.CircuitBreaker
	logger         *observability.Logger
	metrics        *observability.Metrics
	tracer         observability.Tracer

	cache     *cache.MemoryCache
	ownsCache bool

	products   *cache.Memoized[catalog.ProductQuery, *catalog.ProductPage]
	product    *cache.Memoized[string, *catalog.Product]
	categories *cache.Memoized[struct{}, []catalog.Category]
	dashboard  *cache.Memoized[struct{}, *catalog.DashboardStats]

	healthMu sync.RWMutex
	health   Health
}

// envelope is the backend's response wrapper
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// request describes one backend call
type request struct {
	method     string
	path       string
	query      url.Values
	body       any
	maxRetries *int
}

// NewClient creates a backend client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("storefront: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("storefront: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewMemoryTokenSource()
	}
	if cfg.Retry.RetryDelay == 0 && cfg.Retry.MaxRetries == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.OrderMaxRetries <= 0 {
		cfg.OrderMaxRetries = 2
	}
	if cfg.DashboardTTL <= 0 {
		cfg.DashboardTTL = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	ownsCache := false
	if cfg.Cache == nil {
		cfg.Cache = cache.NewAPICache()
		ownsCache = true
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		metrics := cfg.Metrics
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "backend",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				metrics.SetCircuitBreakerState(context.Background(), "backend", int64(to))
			},
		})
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           cfg.HTTPClient,
		tokens:         cfg.Tokens,
		onUnauthorized: cfg.OnUnauthorized,
		retryCfg:       cfg.Retry,
		orderRetries:   cfg.OrderMaxRetries,
		limiter:        resilience.NewRateLimiterFromRPM(cfg.RateLimitRPM, cfg.RateLimitBurst),
		cb:             cb,
		logger:         cfg.Logger.Named("storefront"),
		metrics:        cfg.Metrics,
		tracer:         cfg.Tracer,
		cache:          cfg.Cache,
		ownsCache:      ownsCache,
		health:         Health{Backend: "shop-api"},
	}

	c.products = cache.WithCache(c.cache, c.fetchProducts, catalog.ProductQuery.CacheKey,
		cache.WithKeyPrefix("products:list:"), cache.WithName("products"), cache.WithMetrics(c.metrics))
	c.product = cache.WithCache(c.cache, c.fetchProduct, func(id string) string { return id },
		cache.WithKeyPrefix("products:item:"), cache.WithName("product"), cache.WithMetrics(c.metrics))
	c.categories = cache.WithCache(c.cache, c.fetchCategories, func(struct{}) string { return "all" },
		cache.WithKeyPrefix("categories:"), cache.WithName("categories"), cache.WithMetrics(c.metrics))
	c.dashboard = cache.WithCache(c.cache, c.fetchDashboard, func(struct{}) string { return "stats" },
		cache.WithKeyPrefix("dashboard:"), cache.WithName("dashboard"), cache.WithMetrics(c.metrics),
		cache.WithTTL(cfg.DashboardTTL))

	return c, nil
}

// Close releases the cache if the client created it
func (c *Client) Close() error {
	if c.ownsCache {
		return c.cache.Close()
	}
	return nil
}

// Cache returns the API cache backing catalogue reads
func (c *Client) Cache() *cache.MemoryCache {
	return c.cache
}

// call runs one request through circuit breaker, retry and rate limiter
// and decodes the envelope's data into T.
func call[T any](c *Client, ctx context.Context, endpoint string, r request) (T, error) {
	ctx, span := c.tracer.StartSpan(ctx, "storefront."+endpoint,
		attribute.String("http.method", r.method),
		attribute.String("http.route", r.path),
	)
	defer span.End()

	retryCfg := c.retryCfg
	if r.maxRetries != nil {
		retryCfg.MaxRetries = *r.maxRetries
	}
	retryCfg.OnRetry = func(attempt int, err *apierr.Error) {
		c.metrics.RecordRetry(ctx, endpoint, err.Kind.String())
		span.AddEvent("retry", attribute.Int("attempt", attempt), attribute.String("kind", err.Kind.String()))
		c.logger.LogWarn(ctx, "Retrying backend call", "endpoint", endpoint, "attempt", attempt, "error", err)
	}

	res, err := resilience.Execute(c.cb, ctx, func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, retryCfg, func(ctx context.Context) (T, error) {
			var out T
			if err := c.limiter.Wait(ctx); err != nil {
				return out, err
			}

			start := time.Now()
			err := c.roundTrip(ctx, r, &out)
			duration := time.Since(start)

			c.recordHealth(err, duration)
			status := "success"
			if err != nil {
				status = apierr.Classify(err).Kind.String()
			}
			c.metrics.RecordAPICall(ctx, endpoint, status, duration)

			return out, err
		})
	})
	if err != nil {
		span.NoticeError(err)
		if apierr.IsUnauthorized(err) {
			c.handleUnauthorized(ctx)
		}
		c.logger.LogDebug(ctx, "Backend call failed", "endpoint", endpoint, "error", err)
		return res, fmt.Errorf("%s: %w", endpoint, err)
	}

	return res, nil
}

// roundTrip performs a single HTTP exchange
func (c *Client) roundTrip(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if decodeErr == nil {
			msg = env.Message
		}
		return &apierr.StatusError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return &apierr.StatusError{Status: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

func (c *Client) handleUnauthorized(ctx context.Context) {
	c.tokens.Clear()
	c.logger.LogInfo(ctx, "Backend rejected credentials, session cleared")
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

func retries(n int) *int {
	return &n
}
