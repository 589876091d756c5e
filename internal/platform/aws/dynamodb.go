package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/agatticelli/flower-shop/internal/platform/observability"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

// ErrDuplicate is returned by PutOnce when the key already exists and by
// Claim when the attribute is already set
var ErrDuplicate = errors.New("item already exists")

// DynamoAPI is the subset of the DynamoDB client used here
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// TableConfig configures a Table
type TableConfig struct {
	AWSConfig aws.Config
	API       DynamoAPI // overrides the client built from AWSConfig
	TableName string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Retry     *resilience.RetryConfig
}

// Table writes items to a single DynamoDB table
type Table struct {
	client  DynamoAPI
	name    string
	retry   resilience.RetryConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewTable creates a table writer
func NewTable(cfg TableConfig) (*Table, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	client := cfg.API
	if client == nil {
		client = dynamodb.NewFromConfig(cfg.AWSConfig)
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Table{
		client:  client,
		name:    cfg.TableName,
		retry:   retry,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// PutOnce marshals item with attributevalue and writes it unless an item
// with the same keyAttr already exists, in which case ErrDuplicate is
// returned. Redelivered queue messages rely on this.
func (t *Table) PutOnce(ctx context.Context, item any, keyAttr string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	start := time.Now()
	_, err = resilience.Retry(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
		_, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(t.name),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(#k)"),
			ExpressionAttributeNames: map[string]string{
				"#k": keyAttr,
			},
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return struct{}{}, ErrDuplicate
		}
		return struct{}{}, classify(err)
	})

	return t.finish(ctx, "dynamodb_put", start, err)
}

// finish records the call and maps its error for callers
func (t *Table) finish(ctx context.Context, endpoint string, start time.Time, err error) error {
	status := "success"
	switch {
	case errors.Is(err, ErrDuplicate):
		status = "duplicate"
	case err != nil:
		status = "error"
	}
	t.metrics.RecordAPICall(ctx, endpoint, status, time.Since(start))

	if errors.Is(err, ErrDuplicate) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("%s on %s failed: %w", endpoint, t.name, err)
	}
	return nil
}

// Claim sets attr to at on the item whose keyAttr equals key, unless attr
// is already set, in which case ErrDuplicate is returned. The item must
// exist. Consumers use it to run a side effect once per stored item.
func (t *Table) Claim(ctx context.Context, keyAttr, key, attr string, at time.Time) error {
	start := time.Now()
	_, err := resilience.Retry(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
		_, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(t.name),
			Key:                 map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: key}},
			UpdateExpression:    aws.String("SET #a = :at"),
			ConditionExpression: aws.String("attribute_exists(#k) AND attribute_not_exists(#a)"),
			ExpressionAttributeNames: map[string]string{
				"#k": keyAttr,
				"#a": attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
			},
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return struct{}{}, ErrDuplicate
		}
		return struct{}{}, classify(err)
	})
	return t.finish(ctx, "dynamodb_claim", start, err)
}

// Release removes attr so a later Claim can succeed again
func (t *Table) Release(ctx context.Context, keyAttr, key, attr string) error {
	start := time.Now()
	_, err := resilience.Retry(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
		_, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(t.name),
			Key:                      map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: key}},
			UpdateExpression:         aws.String("REMOVE #a"),
			ExpressionAttributeNames: map[string]string{"#a": attr},
		})
		return struct{}{}, classify(err)
	})
	return t.finish(ctx, "dynamodb_release", start, err)
}
