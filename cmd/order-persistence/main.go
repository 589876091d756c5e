package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/agatticelli/flower-shop/internal/consumer"
	"github.com/agatticelli/flower-shop/internal/platform/aws"
	"github.com/agatticelli/flower-shop/internal/platform/mail"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx := context.Background()
	logger := observability.NewLogger(getenv("LOG_LEVEL", "info"), "json").Named("order-persistence")

	awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
		Region:   getenv("AWS_REGION", "us-east-1"),
		Endpoint: os.Getenv("AWS_ENDPOINT_URL"),
	})
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	table, err := aws.NewTable(aws.TableConfig{
		AWSConfig: awsCfg,
		TableName: getenv("ORDERS_TABLE", "orders"),
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create table client: %v", err)
	}

	var mailer mail.Sender
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		sg, err := mail.NewSendGridClient(key, getenv("MAIL_FROM", "orders@flower-shop.local"), "Flower Shop", logger)
		if err != nil {
			log.Fatalf("Failed to create mail client: %v", err)
		}
		mailer = sg
	} else {
		logger.LogInfo(ctx, "SENDGRID_API_KEY not set, confirmation mail disabled")
	}

	logger.LogInfo(ctx, "persistence lambda initialized", "table", table.Name())

	h := consumer.NewPersistenceHandler(table, mailer, logger)
	lambda.Start(h.Handle)
}
