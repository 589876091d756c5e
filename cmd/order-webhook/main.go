package main

import (
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/agatticelli/flower-shop/internal/consumer"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger := observability.NewLogger(level, "json").Named("order-webhook")

	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = 2

	h := consumer.NewWebhookHandler(consumer.WebhookConfig{
		URL:        os.Getenv("WEBHOOK_URL"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Retry:      retry,
		Logger:     logger,
	})
	lambda.Start(h.Handle)
}
