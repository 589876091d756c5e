package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

type fakeDynamo struct {
	inputs  []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	errs    []error
}

func (f *fakeDynamo) next() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if err := f.next(); err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.inputs = append(f.inputs, in)
	if err := f.next(); err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, nil
}

type testItem struct {
	EventID string `dynamodbav:"event_id"`
	Total   int64  `dynamodbav:"total_cents"`
}

func newTestTable(t *testing.T, api DynamoAPI) *Table {
	t.Helper()
	table, err := NewTable(TableConfig{
		API:       api,
		TableName: "orders",
		Retry:     &resilience.RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestTable_PutOnceMarshalsConditionally(t *testing.T) {
	api := &fakeDynamo{}
	table := newTestTable(t, api)

	if err := table.PutOnce(context.Background(), testItem{EventID: "e-1", Total: 1250}, "event_id"); err != nil {
		t.Fatalf("PutOnce: %v", err)
	}

	in := api.inputs[0]
	if aws.ToString(in.TableName) != "orders" {
		t.Errorf("table = %q", aws.ToString(in.TableName))
	}
	if _, ok := in.Item["event_id"].(*types.AttributeValueMemberS); !ok {
		t.Errorf("event_id not marshalled as string: %#v", in.Item["event_id"])
	}
	if n, ok := in.Item["total_cents"].(*types.AttributeValueMemberN); !ok || n.Value != "1250" {
		t.Errorf("total_cents = %#v", in.Item["total_cents"])
	}
	if aws.ToString(in.ConditionExpression) != "attribute_not_exists(#k)" || in.ExpressionAttributeNames["#k"] != "event_id" {
		t.Errorf("missing idempotency condition")
	}

	t.Log("✓ Item marshalled with attributevalue and written conditionally")
}

func TestTable_DuplicateIsNotRetried(t *testing.T) {
	api := &fakeDynamo{errs: []error{&types.ConditionalCheckFailedException{Message: aws.String("exists")}}}
	table := newTestTable(t, api)

	err := table.PutOnce(context.Background(), testItem{EventID: "e-1"}, "event_id")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if len(api.inputs) != 1 {
		t.Errorf("duplicate must not be retried, got %d attempts", len(api.inputs))
	}

	t.Log("✓ Conditional check failure reported as duplicate")
}

func TestTable_RetriesTransientFailures(t *testing.T) {
	api := &fakeDynamo{errs: []error{&apierr.StatusError{Status: 500}, nil}}
	table := newTestTable(t, api)

	if err := table.PutOnce(context.Background(), testItem{EventID: "e-2"}, "event_id"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(api.inputs) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(api.inputs))
	}

	t.Log("✓ Transient DynamoDB failures retried")
}

func TestTable_ClaimSetsAttributeOnce(t *testing.T) {
	api := &fakeDynamo{}
	table := newTestTable(t, api)
	at := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

	if err := table.Claim(context.Background(), "event_id", "e-1", "mailed_at", at); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	in := api.updates[0]
	if k, ok := in.Key["event_id"].(*types.AttributeValueMemberS); !ok || k.Value != "e-1" {
		t.Errorf("key = %#v", in.Key)
	}
	if aws.ToString(in.ConditionExpression) != "attribute_exists(#k) AND attribute_not_exists(#a)" || in.ExpressionAttributeNames["#a"] != "mailed_at" {
		t.Errorf("unexpected condition %q %v", aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames)
	}
	if v, ok := in.ExpressionAttributeValues[":at"].(*types.AttributeValueMemberS); !ok || v.Value != "2026-02-14T09:30:00Z" {
		t.Errorf(":at = %#v", in.ExpressionAttributeValues[":at"])
	}

	api.errs = []error{&types.ConditionalCheckFailedException{Message: aws.String("set")}}
	if err := table.Claim(context.Background(), "event_id", "e-1", "mailed_at", at); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second claim: expected ErrDuplicate, got %v", err)
	}

	if err := table.Release(context.Background(), "event_id", "e-1", "mailed_at"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if last := api.updates[len(api.updates)-1]; aws.ToString(last.UpdateExpression) != "REMOVE #a" {
		t.Errorf("release expression = %q", aws.ToString(last.UpdateExpression))
	}

	t.Log("✓ Claim is conditional and Release clears it")
}

func TestNewTable_RequiresName(t *testing.T) {
	if _, err := NewTable(TableConfig{API: &fakeDynamo{}}); err == nil {
		t.Fatal("expected error")
	}
	t.Log("✓ Table name required")
}
