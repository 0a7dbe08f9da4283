package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeClient struct {
	getItem    func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItem    func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	deleteItem func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	query      func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	scan       func(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

func (f *fakeClient) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItem(ctx, input, opts...)
}

func (f *fakeClient) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return f.putItem(ctx, input, opts...)
}

func (f *fakeClient) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return f.deleteItem(ctx, input, opts...)
}

func (f *fakeClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return f.query(ctx, input, opts...)
}

func (f *fakeClient) Scan(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return f.scan(ctx, input, opts...)
}

func stringAttr(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func TestAccountStoreGet(t *testing.T) {
	client := &fakeClient{
		getItem: func(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			if aws.ToString(input.TableName) != "accounts" {
				t.Errorf("table = %s, want accounts", aws.ToString(input.TableName))
			}
			key, ok := input.Key[AttrAccount].(*types.AttributeValueMemberS)
			if !ok || key.Value != "any" {
				t.Errorf("key = %v, want any", input.Key[AttrAccount])
			}
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				AttrAccount: stringAttr("any"),
				AttrData:    stringAttr(`{"name":"Any"}`),
			}}, nil
		},
	}

	store := NewAccountStore(client, "accounts")
	data, err := store.Get(context.Background(), "any")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"name":"Any"}` {
		t.Errorf("data = %s", data)
	}
}

func TestAccountStoreGetNotFound(t *testing.T) {
	client := &fakeClient{
		getItem: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}

	store := NewAccountStore(client, "accounts")
	if _, err := store.Get(context.Background(), "any"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAccountStorePut(t *testing.T) {
	var put *dynamodb.PutItemInput
	client := &fakeClient{
		putItem: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			put = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	store := NewAccountStore(client, "accounts")
	if err := store.Put(context.Background(), "any", []byte(`{"name":"Any"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := put.Item[AttrData].(*types.AttributeValueMemberS)
	if !ok || data.Value != `{"name":"Any"}` {
		t.Errorf("stored data = %v", put.Item[AttrData])
	}
}

func TestAccountStoreListFollowsPagination(t *testing.T) {
	calls := 0
	client := &fakeClient{
		scan: func(_ context.Context, input *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			calls++
			if calls == 1 {
				if input.ExclusiveStartKey != nil {
					t.Error("first page must not carry a start key")
				}
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{{
						AttrAccount: stringAttr("any"),
						AttrData:    stringAttr(`{"name":"Any"}`),
					}},
					LastEvaluatedKey: map[string]types.AttributeValue{AttrAccount: stringAttr("any")},
				}, nil
			}
			if input.ExclusiveStartKey == nil {
				t.Error("second page must carry the previous key")
			}
			return &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{{
					AttrAccount: stringAttr("other"),
					AttrData:    stringAttr(`{"name":"Other"}`),
				}},
			}, nil
		},
	}

	store := NewAccountStore(client, "accounts")
	accounts, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	if accounts[0].ID != "any" || accounts[1].ID != "other" {
		t.Errorf("ids = %s, %s", accounts[0].ID, accounts[1].ID)
	}
	if calls != 2 {
		t.Errorf("scan calls = %d, want 2", calls)
	}
}

func TestEmailStoreGetNotFound(t *testing.T) {
	client := &fakeClient{
		getItem: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}

	store := NewEmailStore(client, "received")
	if _, err := store.Get(context.Background(), "any", "message-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEmailStorePutUsesCompositeKey(t *testing.T) {
	var put *dynamodb.PutItemInput
	client := &fakeClient{
		putItem: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			put = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	store := NewEmailStore(client, "received")
	if err := store.Put(context.Background(), "any", "message-1", []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	account, _ := put.Item[AttrAccount].(*types.AttributeValueMemberS)
	message, _ := put.Item[AttrMessageID].(*types.AttributeValueMemberS)
	if account == nil || account.Value != "any" || message == nil || message.Value != "message-1" {
		t.Errorf("key = %v / %v", put.Item[AttrAccount], put.Item[AttrMessageID])
	}
}

func TestEmailStoreListQueriesByAccount(t *testing.T) {
	client := &fakeClient{
		query: func(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			account, ok := input.ExpressionAttributeValues[":account"].(*types.AttributeValueMemberS)
			if !ok || account.Value != "any" {
				t.Errorf("account condition = %v", input.ExpressionAttributeValues[":account"])
			}
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{{
					AttrAccount:   stringAttr("any"),
					AttrMessageID: stringAttr("message-1"),
					AttrData:      stringAttr(`{"subject":"hi"}`),
				}},
			}, nil
		},
	}

	store := NewEmailStore(client, "received")
	emails, err := store.List(context.Background(), "any")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emails) != 1 || emails[0].MessageID != "message-1" {
		t.Fatalf("emails = %v", emails)
	}
	if string(emails[0].Data) != `{"subject":"hi"}` {
		t.Errorf("data = %s", emails[0].Data)
	}
}

func TestEmailStoreWrapsClientErrors(t *testing.T) {
	failure := errors.New("throttled")
	client := &fakeClient{
		deleteItem: func(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			return nil, failure
		},
	}

	store := NewEmailStore(client, "received")
	if err := store.Delete(context.Background(), "any", "message-1"); !errors.Is(err, failure) {
		t.Errorf("err = %v, want wrapped client error", err)
	}
}
