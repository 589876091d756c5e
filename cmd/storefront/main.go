package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agatticelli/flower-shop/internal/cart"
	"github.com/agatticelli/flower-shop/internal/checkout"
	"github.com/agatticelli/flower-shop/internal/notification"
	"github.com/agatticelli/flower-shop/internal/platform/aws"
	"github.com/agatticelli/flower-shop/internal/platform/cache"
	"github.com/agatticelli/flower-shop/internal/platform/config"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
	"github.com/agatticelli/flower-shop/internal/server"
	"github.com/agatticelli/flower-shop/internal/storefront"
)

const serviceName = "flower-shop-storefront"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config/config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad(*configPath)

	// Setup observability (foundational - must be first)
	log.Println("Setting up observability...")
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics(serviceName, cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Observability.Tracing.Environment,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		Sampler:     cfg.Observability.Tracing.Sampler,
		Ratio:       cfg.Observability.Tracing.Ratio,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()
	tracer := observability.NewTracer(serviceName)

	logger.LogInfo(ctx, "observability setup complete")

	// API response cache
	apiCache := cache.NewAPICache(
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithDefaultTTL(cfg.Cache.APITTL),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
	)
	defer apiCache.Close()

	// Cart persistence
	persister, closePersister, err := newPersister(ctx, cfg)
	if err != nil {
		logger.LogError(ctx, "failed to create cart persister", err, "backend", cfg.Cart.Backend)
		log.Fatalf("Failed to create cart persister: %v", err)
	}
	defer closePersister()
	carts := cart.NewRegistry(cfg.Cart.StorageKey, persister, logger.Named("cart"), metrics,
		cart.WithMaxSessions(cfg.Cart.MaxSessions),
		cart.WithIdleTTL(cfg.Cart.IdleTTL),
	)
	defer carts.Close()

	// Backend client
	client, err := storefront.NewClient(storefront.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		OnUnauthorized: func(ctx context.Context) {
			logger.LogWarn(ctx, "backend credentials rejected, cleared stored token")
		},
		Retry: resilience.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			RetryDelay: cfg.Retry.RetryDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
			Jitter:     cfg.Retry.Jitter,
		},
		OrderMaxRetries: cfg.Retry.OrderMaxRetries,
		Cache:           apiCache,
		DashboardTTL:    cfg.Cache.DashboardTTL,
		RateLimitRPM:    cfg.Backend.RateLimit.RequestsPerMinute,
		RateLimitBurst:  cfg.Backend.RateLimit.Burst,
		CircuitBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "backend",
			FailureThreshold: cfg.Backend.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.Backend.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.Backend.CircuitBreaker.Timeout,
			OnStateChange: func(from, to resilience.State) {
				logger.LogWarn(context.Background(), "backend circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
				metrics.SetCircuitBreakerState(context.Background(), "backend", int64(to))
			},
		}),
		Logger:  logger.Named("storefront"),
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create backend client", err)
		log.Fatalf("Failed to create backend client: %v", err)
	}
	defer client.Close()

	// Order event publisher
	publisher, err := newPublisher(ctx, cfg, logger, metrics, tracer)
	if err != nil {
		logger.LogError(ctx, "failed to create publisher", err)
		log.Fatalf("Failed to create publisher: %v", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.Config{
		Orders:  client,
		Events:  publisher,
		Logger:  logger.Named("checkout"),
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create checkout service: %v", err)
	}

	srv, err := server.New(server.Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Catalogue:       client,
		Carts:           carts,
		Checkout:        checkoutSvc,
		Health:          client,
		Logger:          logger.Named("http"),
		Metrics:         metrics,
		Tracer:          tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}

	// Warm the catalogue cache before taking traffic
	if cfg.Cache.Warmup.Enabled {
		warmer := cache.NewWarmer(logger.Named("warmup"), cache.WarmupConfig{
			Timeout:         cfg.Cache.Warmup.Timeout,
			ContinueOnError: true,
			Parallel:        cfg.Cache.Warmup.Parallel,
			Workers:         cfg.Cache.Warmup.Workers,
		})
		for _, p := range client.WarmupProviders() {
			warmer.RegisterProvider(p)
		}
		if res := warmer.Warmup(ctx); res.HasErrors() {
			logger.LogWarn(ctx, "cache warmup incomplete", "errors", res.Errors)
		}
	}

	logger.LogInfo(ctx, "starting storefront",
		"port", cfg.HTTP.Port,
		"backend", cfg.Backend.BaseURL,
		"cart_backend", persister.Name(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		reportCache(gctx, apiCache, carts, metrics, cfg.Cache.SweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.LogError(context.Background(), "storefront stopped with error", err)
		log.Fatalf("storefront error: %v", err)
	}
	logger.LogInfo(context.Background(), "application stopped")
}

// newPersister selects the cart backend from config
func newPersister(ctx context.Context, cfg *config.Config) (cart.Persister, func(), error) {
	switch cfg.Cart.Backend {
	case "file":
		p, err := cart.NewFilePersister(cfg.Cart.Dir)
		return p, func() {}, err
	case "redis":
		p, err := cart.NewRedisPersister(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Cart.TTL)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "memory", "":
		return cart.NewMemoryPersister(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cart backend %q", cfg.Cart.Backend)
	}
}

// newPublisher returns the SNS publisher, or a logging no-op when SNS is
// disabled.
func newPublisher(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer observability.Tracer) (checkout.EventPublisher, error) {
	if !cfg.AWS.SNSEnabled {
		logger.LogInfo(ctx, "SNS disabled, order events will only be logged")
		return notification.NewNoOpPublisher(logger.Named("events")), nil
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	snsClient := aws.NewSNSClient(aws.SNSClientConfig{
		AWSConfig: awsCfg,
		Logger:    logger.Named("sns"),
		Metrics:   metrics,
	})

	return notification.NewPublisher(notification.PublisherConfig{
		SNSClient: snsClient,
		TopicARN:  cfg.AWS.SNSTopicARN,
		Logger:    logger.Named("events"),
		Metrics:   metrics,
		Tracer:    tracer,
	})
}

// reportCache publishes cache and cart session gauges until ctx ends
func reportCache(ctx context.Context, c *cache.MemoryCache, carts *cart.Registry, metrics *observability.Metrics, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Report(ctx, metrics, "api")
			carts.Report(ctx)
		}
	}
}
