// Package dynamo implements the metadata-store contract on DynamoDB.
// Records are opaque JSON blobs in a Data attribute; the store never
// interprets their structure.
package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ErrNotFound marks a record absent from the metadata store.
var ErrNotFound = errors.New("record not found")

// Client defines the interface for DynamoDB operations.
type Client interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Attribute names shared by the accounts and email tables.
const (
	AttrAccount   = "Account"
	AttrMessageID = "MessageID"
	AttrData      = "Data"
)
