package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EmailStore persists email summary records keyed by account and message
// identifiers. One store instance serves one direction's table.
type EmailStore struct {
	client Client
	table  string
}

// NewEmailStore creates an EmailStore backed by the given table.
func NewEmailStore(client Client, table string) *EmailStore {
	return &EmailStore{client: client, table: table}
}

func emailKey(accountID, messageID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrAccount:   &types.AttributeValueMemberS{Value: accountID},
		AttrMessageID: &types.AttributeValueMemberS{Value: messageID},
	}
}

// Get returns the raw record for one message, or ErrNotFound.
func (s *EmailStore) Get(ctx context.Context, accountID, messageID string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       emailKey(accountID, messageID),
	})
	if err != nil {
		return nil, fmt.Errorf("get email %s/%s: %w", accountID, messageID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("email %s/%s: %w", accountID, messageID, ErrNotFound)
	}
	return itemData(out.Item)
}

// Put stores the raw record for one message, replacing any previous record.
func (s *EmailStore) Put(ctx context.Context, accountID, messageID string, data []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			AttrAccount:   &types.AttributeValueMemberS{Value: accountID},
			AttrMessageID: &types.AttributeValueMemberS{Value: messageID},
			AttrData:      &types.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return fmt.Errorf("put email %s/%s: %w", accountID, messageID, err)
	}
	return nil
}

// Delete removes one message record. Deleting an absent record is not an
// error.
func (s *EmailStore) Delete(ctx context.Context, accountID, messageID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       emailKey(accountID, messageID),
	})
	if err != nil {
		return fmt.Errorf("delete email %s/%s: %w", accountID, messageID, err)
	}
	return nil
}

// ListedEmail pairs a message identifier with its raw record.
type ListedEmail struct {
	MessageID string
	Data      []byte
}

// List returns every message record for one account, following pagination
// to the end.
func (s *EmailStore) List(ctx context.Context, accountID string) ([]ListedEmail, error) {
	var emails []ListedEmail
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#account = :account"),
			ExpressionAttributeNames: map[string]string{
				"#account": AttrAccount,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":account": &types.AttributeValueMemberS{Value: accountID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("list emails for %s: %w", accountID, err)
		}
		for _, item := range out.Items {
			messageID, err := itemString(item, AttrMessageID)
			if err != nil {
				return nil, err
			}
			data, err := itemData(item)
			if err != nil {
				return nil, err
			}
			emails = append(emails, ListedEmail{MessageID: messageID, Data: data})
		}
		if out.LastEvaluatedKey == nil {
			return emails, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
