package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	meter    metric.Meter
	registry *promclient.Registry

	// Backend API metrics
	APICalls    metric.Int64Counter
	APIDuration metric.Float64Histogram
	APIRetries  metric.Int64Counter

	// Cache metrics
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	CacheEvictions metric.Int64Counter
	CacheEntries   metric.Int64Gauge

	// Cart metrics
	CartMutations     metric.Int64Counter
	CartPersistErrors metric.Int64Counter

	// Checkout metrics
	Checkouts     metric.Int64Counter
	CheckoutValue metric.Float64Histogram

	// Event publishing
	EventsPublished metric.Int64Counter

	// HTTP server metrics
	HTTPRequests metric.Int64Counter
	HTTPDuration metric.Float64Histogram

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter
}

// NewMetrics creates a new Metrics instance backed by its own Prometheus
// registry. When disabled, instruments are no-ops.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		m := &Metrics{meter: noop.NewMeterProvider().Meter(serviceName)}
		if err := m.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		return m, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		registry: registry,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	if m.APICalls, err = m.meter.Int64Counter(
		"shop.api.calls",
		metric.WithDescription("Total backend API calls"),
	); err != nil {
		return err
	}

	if m.APIDuration, err = m.meter.Float64Histogram(
		"shop.api.duration",
		metric.WithDescription("Backend API call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.APIRetries, err = m.meter.Int64Counter(
		"shop.api.retries",
		metric.WithDescription("Backend API retry attempts by error kind"),
	); err != nil {
		return err
	}

	if m.CacheHits, err = m.meter.Int64Counter(
		"shop.cache.hits",
		metric.WithDescription("Total cache hits"),
	); err != nil {
		return err
	}

	if m.CacheMisses, err = m.meter.Int64Counter(
		"shop.cache.misses",
		metric.WithDescription("Total cache misses"),
	); err != nil {
		return err
	}

	if m.CacheEvictions, err = m.meter.Int64Counter(
		"shop.cache.evictions",
		metric.WithDescription("Entries evicted for capacity"),
	); err != nil {
		return err
	}

	if m.CacheEntries, err = m.meter.Int64Gauge(
		"shop.cache.entries",
		metric.WithDescription("Entries currently held by the cache"),
	); err != nil {
		return err
	}

	if m.CartMutations, err = m.meter.Int64Counter(
		"shop.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"),
	); err != nil {
		return err
	}

	if m.CartPersistErrors, err = m.meter.Int64Counter(
		"shop.cart.persist_errors",
		metric.WithDescription("Failed cart persistence writes"),
	); err != nil {
		return err
	}

	if m.Checkouts, err = m.meter.Int64Counter(
		"shop.checkouts",
		metric.WithDescription("Checkout attempts by status"),
	); err != nil {
		return err
	}

	if m.CheckoutValue, err = m.meter.Float64Histogram(
		"shop.checkout.value",
		metric.WithDescription("Order value of successful checkouts"),
		metric.WithUnit("USD"),
	); err != nil {
		return err
	}

	if m.EventsPublished, err = m.meter.Int64Counter(
		"shop.events.published",
		metric.WithDescription("Order events published"),
	); err != nil {
		return err
	}

	if m.HTTPRequests, err = m.meter.Int64Counter(
		"shop.http.requests",
		metric.WithDescription("HTTP requests served"),
	); err != nil {
		return err
	}

	if m.HTTPDuration, err = m.meter.Float64Histogram(
		"shop.http.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"shop.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	); err != nil {
		return err
	}

	if m.Errors, err = m.meter.Int64Counter(
		"shop.errors",
		metric.WithDescription("Total errors encountered"),
	); err != nil {
		return err
	}

	return nil
}

// RecordAPICall records a backend API call
func (m *Metrics) RecordAPICall(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.APICalls.Add(ctx, 1, attrs)
	m.APIDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry(ctx context.Context, endpoint, kind string) {
	if m == nil {
		return
	}
	m.APIRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("kind", kind),
	))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, cache string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

// RecordCacheSize records eviction count delta and current size
func (m *Metrics) RecordCacheSize(ctx context.Context, cache string, size int, evicted int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache", cache))
	m.CacheEntries.Record(ctx, int64(size), attrs)
	if evicted > 0 {
		m.CacheEvictions.Add(ctx, evicted, attrs)
	}
}

// RecordCartMutation records a cart mutation outcome
func (m *Metrics) RecordCartMutation(ctx context.Context, op string, ok bool) {
	if m == nil {
		return
	}
	m.CartMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("ok", ok),
	))
}

// RecordCartPersistError records a failed cart write
func (m *Metrics) RecordCartPersistError(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.CartPersistErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordCheckout records a checkout attempt
func (m *Metrics) RecordCheckout(ctx context.Context, status string, valueUSD float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Checkouts.Add(ctx, 1, attrs)
	if status == "success" {
		m.CheckoutValue.Record(ctx, valueUSD, attrs)
	}
}

// RecordEventPublished records an order event publish
func (m *Metrics) RecordEventPublished(ctx context.Context, eventType, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	))
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, attrs)
	m.HTTPDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("metrics not available"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
