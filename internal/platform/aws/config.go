// Package aws wraps the AWS SDK clients used for order events: SNS for
// publishing and DynamoDB for order persistence.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/agatticelli/flower-shop/internal/platform/apierr"
)

// Config holds AWS configuration
type Config struct {
	Region string

	// Endpoint overrides service endpoints, e.g. LocalStack
	Endpoint string
}

// LoadAWSConfig loads AWS SDK configuration using default credential chain
// (environment variables, shared credentials file, IAM roles, etc.)
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// classify maps an SDK response error onto apierr.StatusError so retry and
// circuit breaker treat AWS 5xx/throttling like backend failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %w", &apierr.StatusError{Status: respErr.HTTPStatusCode(), Message: respErr.Err.Error()}, err)
	}
	return err
}
