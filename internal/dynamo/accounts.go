package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AccountStore persists account records keyed by account identifier.
type AccountStore struct {
	client Client
	table  string
}

// NewAccountStore creates an AccountStore backed by the given table.
func NewAccountStore(client Client, table string) *AccountStore {
	return &AccountStore{client: client, table: table}
}

// Get returns the raw record for one account, or ErrNotFound.
func (s *AccountStore) Get(ctx context.Context, accountID string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			AttrAccount: &types.AttributeValueMemberS{Value: accountID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return itemData(out.Item)
}

// Put stores the raw record for one account, replacing any previous record.
func (s *AccountStore) Put(ctx context.Context, accountID string, data []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			AttrAccount: &types.AttributeValueMemberS{Value: accountID},
			AttrData:    &types.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return fmt.Errorf("put account %s: %w", accountID, err)
	}
	return nil
}

// Delete removes one account record. Deleting an absent record is not an
// error.
func (s *AccountStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			AttrAccount: &types.AttributeValueMemberS{Value: accountID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", accountID, err)
	}
	return nil
}

// ListedAccount pairs an account identifier with its raw record.
type ListedAccount struct {
	ID   string
	Data []byte
}

// List returns every account record, following pagination to the end.
func (s *AccountStore) List(ctx context.Context) ([]ListedAccount, error) {
	var accounts []ListedAccount
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, item := range out.Items {
			id, err := itemString(item, AttrAccount)
			if err != nil {
				return nil, err
			}
			data, err := itemData(item)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, ListedAccount{ID: id, Data: data})
		}
		if out.LastEvaluatedKey == nil {
			return accounts, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func itemData(item map[string]types.AttributeValue) ([]byte, error) {
	data, err := itemString(item, AttrData)
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func itemString(item map[string]types.AttributeValue, attr string) (string, error) {
	value, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("item missing string attribute %s", attr)
	}
	return value.Value, nil
}
