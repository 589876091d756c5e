// Package notification publishes order lifecycle events for downstream
// consumers (order persistence, staff webhook).
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agatticelli/flower-shop/internal/catalog"
)

// EventType names an order lifecycle event
type EventType string

const (
	EventOrderPlaced    EventType = "order.placed"
	EventOrderCancelled EventType = "order.cancelled"
)

// OrderEvent is the message published for an order. Consumers decode it
// from the SNS envelope delivered through SQS.
type OrderEvent struct {
	EventID    string        `json:"eventId"`
	Type       EventType     `json:"type"`
	SessionID  string        `json:"sessionId,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
	Order      catalog.Order `json:"order"`
}

// NewOrderEvent stamps a new event with a random id
func NewOrderEvent(t EventType, sessionID string, order catalog.Order, now time.Time) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       t,
		SessionID:  sessionID,
		OccurredAt: now.UTC(),
		Order:      order,
	}
}

// Attributes returns the SNS message attributes used for subscription filters
func (e OrderEvent) Attributes() map[string]string {
	return map[string]string{
		"event_type": string(e.Type),
		"order_id":   e.Order.ID,
	}
}

// Validate checks the fields consumers rely on
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return errors.New("event id is required")
	}
	if e.Type == "" {
		return errors.New("event type is required")
	}
	if e.Order.ID == "" {
		return errors.New("order id is required")
	}
	return nil
}

// DecodeSQSBody extracts an OrderEvent from an SQS body carrying an SNS
// notification. A body that is the bare event JSON (raw message delivery)
// is accepted too.
func DecodeSQSBody(body string) (OrderEvent, error) {
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return OrderEvent{}, fmt.Errorf("failed to parse SQS body: %w", err)
	}

	payload := []byte(body)
	if envelope.Message != "" {
		payload = []byte(envelope.Message)
	}

	var ev OrderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("failed to parse order event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid order event: %w", err)
	}
	return ev, nil
}
