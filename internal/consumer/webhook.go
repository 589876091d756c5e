package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/agatticelli/flower-shop/internal/notification"
	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

// WebhookConfig configures the staff notification webhook
type WebhookConfig struct {
	URL        string
	HTTPClient *http.Client
	Retry      resilience.RetryConfig
	Logger     *observability.Logger
}

// WebhookHandler posts order events to the staff channel
type WebhookHandler struct {
	url    string
	http   *http.Client
	retry  resilience.RetryConfig
	logger *observability.Logger
}

// WebhookPayload is what the staff channel receives
type WebhookPayload struct {
	Text  string                  `json:"text"`
	Event notification.OrderEvent `json:"event"`
}

// NewWebhookHandler creates the handler. An empty URL makes every record
// a no-op success.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	return &WebhookHandler{url: cfg.URL, http: cfg.HTTPClient, retry: cfg.Retry, logger: cfg.Logger}
}

// Handle processes an SQS batch
func (h *WebhookHandler) Handle(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
	return processBatch(ctx, "order-webhook", h.logger, batch, h.process), nil
}

func (h *WebhookHandler) process(ctx context.Context, ev notification.OrderEvent) error {
	if h.url == "" {
		h.logger.LogWarn(ctx, "no webhook URL configured, skipping", "event_id", ev.EventID)
		return nil
	}

	body, err := json.Marshal(WebhookPayload{Text: summary(ev), Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	cfg := h.retry
	cfg.OnRetry = func(attempt int, err *apierr.Error) {
		h.logger.LogWarn(ctx, "retrying webhook", "attempt", attempt, "error", err)
	}
	_, err = resilience.Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.post(ctx, body)
	})
	return err
}

func (h *WebhookHandler) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Flower-Shop-Webhook/1.0")

	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &apierr.StatusError{Status: resp.StatusCode, Message: string(msg)}
}

// summary is the one-line text shown in the staff channel
func summary(ev notification.OrderEvent) string {
	o := ev.Order
	units := 0
	for _, it := range o.Items {
		units += it.Quantity
	}
	switch ev.Type {
	case notification.EventOrderCancelled:
		return fmt.Sprintf("Order %s cancelled (%s)", orderRef(o.ID, o.OrderNumber), o.TotalAmount)
	default:
		return fmt.Sprintf("New order %s: %d items, %s for %s", orderRef(o.ID, o.OrderNumber), units, o.TotalAmount, o.Shipping.Name)
	}
}
