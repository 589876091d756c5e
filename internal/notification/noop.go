package notification

import (
	"context"

	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// NoOpPublisher logs events instead of publishing them.
// Use this when SNS is not configured (local development, testing).
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a publisher that only logs
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// PublishOrderEvent logs ev
func (p *NoOpPublisher) PublishOrderEvent(ctx context.Context, ev OrderEvent) error {
	if p.logger != nil {
		p.logger.LogInfo(ctx, "order event (SNS disabled)",
			"event_id", ev.EventID,
			"event_type", string(ev.Type),
			"order_id", ev.Order.ID,
			"total_usd", ev.Order.TotalAmount.Float64(),
			"items", len(ev.Order.Items),
		)
	}
	return nil
}

// CircuitBreakerState returns "closed" since there's no circuit breaker
func (p *NoOpPublisher) CircuitBreakerState() string {
	return "closed"
}
