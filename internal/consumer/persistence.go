package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/agatticelli/flower-shop/internal/notification"
	"github.com/agatticelli/flower-shop/internal/platform/aws"
	"github.com/agatticelli/flower-shop/internal/platform/mail"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// RecordTTL is how long order records stay in DynamoDB
const RecordTTL = 90 * 24 * time.Hour

// OrderTable is where order records are written
type OrderTable interface {
	PutOnce(ctx context.Context, item any, keyAttr string) error
	Claim(ctx context.Context, keyAttr, key, attr string, at time.Time) error
	Release(ctx context.Context, keyAttr, key, attr string) error
}

const (
	recordKey  = "event_id"
	mailedAttr = "mailed_at"
)

var _ OrderTable = (*aws.Table)(nil)

// OrderRecord is the DynamoDB item for one order event
type OrderRecord struct {
	EventID    string       `dynamodbav:"event_id"`
	EventType  string       `dynamodbav:"event_type"`
	OrderID    string       `dynamodbav:"order_id"`
	OrderNo    string       `dynamodbav:"order_no,omitempty"`
	Status     string       `dynamodbav:"status"`
	TotalCents int64        `dynamodbav:"total_cents"`
	Items      []RecordItem `dynamodbav:"items"`
	Customer   string       `dynamodbav:"customer"`
	Email      string       `dynamodbav:"email,omitempty"`
	Phone      string       `dynamodbav:"phone"`
	Address    string       `dynamodbav:"address"`
	SessionID  string       `dynamodbav:"session_id,omitempty"`
	OccurredAt string       `dynamodbav:"occurred_at"`
	TTL        int64        `dynamodbav:"ttl"`
}

// RecordItem is one ordered line
type RecordItem struct {
	ProductID      string `dynamodbav:"product_id"`
	Name           string `dynamodbav:"name"`
	Quantity       int    `dynamodbav:"quantity"`
	UnitPriceCents int64  `dynamodbav:"unit_price_cents"`
}

// NewOrderRecord flattens ev into a table item expiring RecordTTL after now
func NewOrderRecord(ev notification.OrderEvent, now time.Time) OrderRecord {
	o := ev.Order
	items := make([]RecordItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = RecordItem{
			ProductID:      it.ProductID,
			Name:           it.ProductName,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPrice.Cents(),
		}
	}
	return OrderRecord{
		EventID:    ev.EventID,
		EventType:  string(ev.Type),
		OrderID:    o.ID,
		OrderNo:    o.OrderNumber,
		Status:     string(o.Status),
		TotalCents: o.TotalAmount.Cents(),
		Items:      items,
		Customer:   o.Shipping.Name,
		Email:      o.Shipping.Email,
		Phone:      o.Shipping.Phone,
		Address:    o.Shipping.Address,
		SessionID:  ev.SessionID,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
		TTL:        now.Add(RecordTTL).Unix(),
	}
}

// PersistenceHandler stores order events and mails a confirmation for
// placed orders
type PersistenceHandler struct {
	table  OrderTable
	mailer mail.Sender // nil disables mail
	logger *observability.Logger
	now    func() time.Time
}

// NewPersistenceHandler creates the handler. mailer may be nil.
func NewPersistenceHandler(table OrderTable, mailer mail.Sender, logger *observability.Logger) *PersistenceHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &PersistenceHandler{table: table, mailer: mailer, logger: logger, now: time.Now}
}

// Handle processes an SQS batch
func (h *PersistenceHandler) Handle(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
	return processBatch(ctx, "order-persistence", h.logger, batch, h.process), nil
}

func (h *PersistenceHandler) process(ctx context.Context, ev notification.OrderEvent) error {
	err := h.table.PutOnce(ctx, NewOrderRecord(ev, h.now()), recordKey)
	switch {
	case errors.Is(err, aws.ErrDuplicate):
		// Redelivery, or a write that landed before its response was lost.
		// The mail claim below decides whether a confirmation is still owed.
		h.logger.LogInfo(ctx, "order event already stored", "event_id", ev.EventID)
	case err != nil:
		return err
	}

	if h.mailer == nil || ev.Type != notification.EventOrderPlaced || ev.Order.Shipping.Email == "" {
		return nil
	}

	err = h.table.Claim(ctx, recordKey, ev.EventID, mailedAttr, h.now())
	switch {
	case errors.Is(err, aws.ErrDuplicate):
		return nil
	case err != nil:
		return fmt.Errorf("failed to claim confirmation mail: %w", err)
	}

	if err := h.mailer.Send(ctx, confirmation(ev)); err != nil {
		h.logger.LogError(ctx, "failed to send order confirmation", err, "order_id", ev.Order.ID)
		if rerr := h.table.Release(ctx, recordKey, ev.EventID, mailedAttr); rerr != nil {
			h.logger.LogError(ctx, "failed to release confirmation claim", rerr, "event_id", ev.EventID)
		}
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

// confirmation renders the order confirmation mail
func confirmation(ev notification.OrderEvent) mail.Message {
	o := ev.Order
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThank you for your order %s.\n\n", o.Shipping.Name, orderRef(o.ID, o.OrderNumber))
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %d x %s  %s\n", it.Quantity, it.ProductName, it.Subtotal())
	}
	fmt.Fprintf(&b, "\nTotal: %s\nDelivering to: %s\n", o.TotalAmount, o.Shipping.Address)

	return mail.Message{
		To:      o.Shipping.Email,
		ToName:  o.Shipping.Name,
		Subject: "Your flower order " + orderRef(o.ID, o.OrderNumber),
		Body:    b.String(),
	}
}

func orderRef(id, number string) string {
	if number != "" {
		return number
	}
	return id
}
