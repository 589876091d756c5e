// Package consumer processes order events delivered from SNS through SQS.
// Each handler reports per-record failures so SQS redelivers only those.
package consumer

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/agatticelli/flower-shop/internal/notification"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// processFunc handles one decoded event
type processFunc func(ctx context.Context, ev notification.OrderEvent) error

// processBatch decodes every record and runs fn, collecting failures
func processBatch(ctx context.Context, name string, logger *observability.Logger, batch events.SQSEvent, fn processFunc) events.SQSEventResponse {
	start := time.Now()
	var failures []events.SQSBatchItemFailure

	for _, record := range batch.Records {
		ev, err := notification.DecodeSQSBody(record.Body)
		if err != nil {
			logger.LogError(ctx, "failed to decode record", err, "message_id", record.MessageId)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		if err := fn(ctx, ev); err != nil {
			logger.LogError(ctx, "failed to process order event", err,
				"message_id", record.MessageId,
				"event_id", ev.EventID,
				"order_id", ev.Order.ID,
			)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
	}

	logger.LogInfo(ctx, "batch processed",
		"consumer", name,
		"records", len(batch.Records),
		"failed", len(failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return events.SQSEventResponse{BatchItemFailures: failures}
}
