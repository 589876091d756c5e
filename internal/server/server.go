// Package server exposes the storefront over HTTP: cart operations,
// catalogue reads, checkout, and health/metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/agatticelli/flower-shop/internal/cart"
	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/checkout"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/storefront"
)

// Catalogue serves product and category reads
type Catalogue interface {
	ListProducts(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
}

// Carts resolves the cart for a session
type Carts interface {
	Get(ctx context.Context, session string) (*cart.Store, error)
}

// Checkout places orders from a cart
type Checkout interface {
	Checkout(ctx context.Context, c checkout.Cart, req checkout.Request) (*checkout.Receipt, error)
}

// HealthReporter reports backend connectivity
type HealthReporter interface {
	Health() storefront.Health
	Ready() bool
}

// Config holds server dependencies
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Catalogue Catalogue
	Carts     Carts
	Checkout  Checkout
	Health    HealthReporter

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
}

// Server is the storefront HTTP server
type Server struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  observability.Tracer
	handler http.Handler
}

// New builds the server and its routes
func New(cfg Config) (*Server, error) {
	if cfg.Catalogue == nil || cfg.Carts == nil || cfg.Checkout == nil {
		return nil, errors.New("server: catalogue, carts and checkout are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
	s.handler = s.instrument(s.routes())
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/cart", s.withCart(s.getCart))
	mux.HandleFunc("DELETE /api/cart", s.withCart(s.clearCart))
	mux.HandleFunc("POST /api/cart/items", s.withCart(s.addItem))
	mux.HandleFunc("PATCH /api/cart/items/{id}", s.withCart(s.updateQuantity))
	mux.HandleFunc("DELETE /api/cart/items/{id}", s.withCart(s.removeItem))
	mux.HandleFunc("POST /api/cart/items/{id}/toggle", s.withCart(s.toggleItem))
	mux.HandleFunc("POST /api/cart/select", s.withCart(s.selectAll))
	mux.HandleFunc("POST /api/cart/open", s.withCart(s.openCart))
	mux.HandleFunc("POST /api/cart/close", s.withCart(s.closeCart))
	mux.HandleFunc("POST /api/cart/toggle", s.withCart(s.toggleCart))

	mux.HandleFunc("GET /api/products", s.listProducts)
	mux.HandleFunc("GET /api/products/{id}", s.getProduct)
	mux.HandleFunc("GET /api/categories", s.listCategories)

	mux.HandleFunc("POST /api/checkout", s.withCart(s.checkout))

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.LogInfo(ctx, "HTTP server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.LogInfo(shutdownCtx, "HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
