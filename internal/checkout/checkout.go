// Package checkout turns the selected cart lines into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/flower-shop/internal/cart"
	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/money"
	"github.com/agatticelli/flower-shop/internal/notification"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

var (
	// ErrNothingSelected is returned when no cart line is selected
	ErrNothingSelected = errors.New("no items selected for checkout")
	// ErrInvalidShipping wraps shipping validation failures
	ErrInvalidShipping = errors.New("invalid shipping details")
)

// OrderCreator places orders with the backend
type OrderCreator interface {
	CreateOrder(ctx context.Context, req catalog.CreateOrderRequest) (*catalog.Order, error)
}

// EventPublisher announces placed orders
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev notification.OrderEvent) error
}

// Cart is the part of cart.Store checkout reads and mutates
type Cart interface {
	SelectedItems() []cart.Item
	RemoveItems(ctx context.Context, itemIDs ...string) cart.Result
}

// Request carries the shopper's delivery and payment details
type Request struct {
	SessionID     string               `json:"-"`
	Shipping      catalog.ShippingInfo `json:"shipping"`
	PaymentMethod string               `json:"paymentMethod,omitempty"`
	Note          string               `json:"note,omitempty"`
}

// Receipt describes a completed checkout
type Receipt struct {
	Order          *catalog.Order `json:"order"`
	RemovedLines   int            `json:"removedLines"`
	EventPublished bool           `json:"eventPublished"`
}

// Config holds Service dependencies. Orders is required.
type Config struct {
	Orders  OrderCreator
	Events  EventPublisher
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
	Clock   func() time.Time
}

// Service runs checkouts
type Service struct {
	orders  OrderCreator
	events  EventPublisher
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  observability.Tracer
	now     func() time.Time
}

// NewService creates a checkout service
func NewService(cfg Config) (*Service, error) {
	if cfg.Orders == nil {
		return nil, errors.New("checkout: order creator is required")
	}
	if cfg.Events == nil {
		cfg.Events = notification.NewNoOpPublisher(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		orders:  cfg.Orders,
		events:  cfg.Events,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     cfg.Clock,
	}, nil
}

// BuildOrderRequest converts selected lines into an order request, pricing
// each line at the product price captured when it was added.
func BuildOrderRequest(lines []cart.Item, req Request) catalog.CreateOrderRequest {
	items := make([]catalog.OrderItem, 0, len(lines))
	total := money.Zero()
	for _, it := range lines {
		oi := catalog.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.Product.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.Product.Price,
		}
		items = append(items, oi)
		total = total.Add(oi.Subtotal())
	}
	return catalog.CreateOrderRequest{
		Items:         items,
		TotalAmount:   total,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
	}
}

// Checkout places an order for the selected lines of c. On success exactly
// the ordered lines are removed and an order.placed event is published.
// A publish failure is logged and reported on the receipt, not returned.
func (s *Service) Checkout(ctx context.Context, c Cart, req Request) (*Receipt, error) {
	ctx, span := s.tracer.StartSpan(ctx, "checkout.Checkout")
	defer span.End()

	lines := c.SelectedItems()
	if len(lines) == 0 {
		s.metrics.RecordCheckout(ctx, "empty", 0)
		return nil, ErrNothingSelected
	}
	if err := req.Shipping.Validate(); err != nil {
		s.metrics.RecordCheckout(ctx, "invalid", 0)
		return nil, fmt.Errorf("%w: %w", ErrInvalidShipping, err)
	}

	orderReq := BuildOrderRequest(lines, req)
	span.SetAttributes(
		attribute.Int("lines", len(lines)),
		attribute.Float64("total_usd", orderReq.TotalAmount.Float64()),
	)

	order, err := s.orders.CreateOrder(ctx, orderReq)
	if err != nil {
		span.NoticeError(err)
		s.metrics.RecordCheckout(ctx, "failed", orderReq.TotalAmount.Float64())
		s.logger.LogError(ctx, "Order placement failed", err,
			"session", req.SessionID,
			"lines", len(lines),
		)
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	ids := make([]string, len(lines))
	for i, it := range lines {
		ids[i] = it.ID
	}
	removed := c.RemoveItems(ctx, ids...)
	if removed.Removed < len(ids) {
		// Lines removed concurrently by another request
		s.logger.LogWarn(ctx, "Ordered lines already gone from cart",
			"order_id", order.ID,
			"ordered", len(ids),
			"removed", removed.Removed,
		)
	}

	receipt := &Receipt{Order: order, RemovedLines: removed.Removed}

	ev := notification.NewOrderEvent(notification.EventOrderPlaced, req.SessionID, *order, s.now())
	if err := s.events.PublishOrderEvent(ctx, ev); err != nil {
		s.logger.LogWarn(ctx, "Order placed but event not published",
			"order_id", order.ID,
			"error", err,
		)
	} else {
		receipt.EventPublished = true
	}

	s.metrics.RecordCheckout(ctx, "placed", order.TotalAmount.Float64())
	s.logger.LogInfo(ctx, "Order placed",
		"order_id", order.ID,
		"session", req.SessionID,
		"lines", len(lines),
		"total_usd", order.TotalAmount.Float64(),
	)

	return receipt, nil
}
