package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/davidbowland/emails-email-api/internal/dynamo"
)

type mockAccounts struct {
	getFunc func(ctx context.Context, accountID string) ([]byte, error)
}

func (m *mockAccounts) Get(ctx context.Context, accountID string) ([]byte, error) {
	return m.getFunc(ctx, accountID)
}

func tokenFor(username string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"cognito:username": username})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func requestFor(username, accountID string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		Headers:        map[string]string{"authorization": "Bearer " + tokenFor(username)},
		PathParameters: map[string]string{"accountId": accountID},
	}
}

func TestHandleReturnsAccount(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, accountID string) ([]byte, error) {
			if accountID != "any" {
				t.Errorf("accountID = %q", accountID)
			}
			return []byte(`{"forwardTargets":["any@domain.com"],"bounceSenders":[],"name":"Any"}`), nil
		},
	}

	h := newHandler(accounts)
	response, err := h.handle(context.Background(), requestFor("any", "any"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	if response.Body != `{"bounceSenders":[],"forwardTargets":["any@domain.com"],"name":"Any"}` {
		t.Errorf("body = %s", response.Body)
	}
}

func TestHandleForbidsOtherAccount(t *testing.T) {
	h := newHandler(&mockAccounts{})
	response, err := h.handle(context.Background(), requestFor("any", "other"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleNotFound(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, dynamo.ErrNotFound
		},
	}

	h := newHandler(accounts)
	response, err := h.handle(context.Background(), requestFor("any", "any"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleStoreFailure(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("throttled")
		},
	}

	h := newHandler(accounts)
	response, err := h.handle(context.Background(), requestFor("any", "any"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleMissingIdentity(t *testing.T) {
	h := newHandler(&mockAccounts{})
	response, err := h.handle(context.Background(), events.APIGatewayV2HTTPRequest{
		PathParameters: map[string]string{"accountId": "any"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", response.StatusCode)
	}
}
