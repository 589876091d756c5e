package notification

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/flower-shop/internal/platform/aws"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

// SNSPublisher is the SNS operation the Publisher needs
type SNSPublisher interface {
	Publish(ctx context.Context, topicARN string, message any, attributes map[string]string) (string, error)
	CircuitBreakerState() resilience.State
	ResetCircuitBreaker()
}

var _ SNSPublisher = (*aws.SNSClient)(nil)

// Publisher publishes order events to SNS
type Publisher struct {
	sns      SNSPublisher
	topicARN string
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   observability.Tracer
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	SNSClient SNSPublisher
	TopicARN  string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
}

// NewPublisher creates a new order event publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	return &Publisher{
		sns:      cfg.SNSClient,
		topicARN: cfg.TopicARN,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}, nil
}

// PublishOrderEvent publishes ev to the orders topic
func (p *Publisher) PublishOrderEvent(ctx context.Context, ev OrderEvent) error {
	ctx, span := p.tracer.StartSpan(ctx, "Publisher.PublishOrderEvent",
		attribute.String("event_id", ev.EventID),
		attribute.String("event_type", string(ev.Type)),
		attribute.String("order_id", ev.Order.ID),
	)
	defer span.End()

	if err := ev.Validate(); err != nil {
		span.NoticeError(err)
		p.metrics.RecordEventPublished(ctx, string(ev.Type), "invalid")
		return fmt.Errorf("refusing to publish: %w", err)
	}

	messageID, err := p.sns.Publish(ctx, p.topicARN, ev, ev.Attributes())
	if err != nil {
		span.NoticeError(err)
		p.metrics.RecordEventPublished(ctx, string(ev.Type), "error")
		p.logger.LogError(ctx, "failed to publish order event", err,
			"event_id", ev.EventID,
			"order_id", ev.Order.ID,
			"topic_arn", p.topicARN,
		)
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	p.metrics.RecordEventPublished(ctx, string(ev.Type), "success")
	p.logger.LogInfo(ctx, "published order event",
		"event_id", ev.EventID,
		"event_type", string(ev.Type),
		"order_id", ev.Order.ID,
		"message_id", messageID,
	)
	return nil
}

// CircuitBreakerState returns the current circuit breaker state
func (p *Publisher) CircuitBreakerState() string {
	return p.sns.CircuitBreakerState().String()
}

// ResetCircuitBreaker manually resets the circuit breaker
func (p *Publisher) ResetCircuitBreaker() {
	p.sns.ResetCircuitBreaker()
	p.logger.LogInfo(context.Background(), "reset SNS circuit breaker")
}
