package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/record"
)

type mockAccounts struct {
	listFunc func(ctx context.Context) ([]dynamo.ListedAccount, error)
}

func (m *mockAccounts) List(ctx context.Context) ([]dynamo.ListedAccount, error) {
	return m.listFunc(ctx)
}

func internalRequest(username string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		Headers: map[string]string{"x-user-name": username},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainPrefix: "emails-email-api-internal",
		},
	}
}

func externalRequest(username string) events.APIGatewayV2HTTPRequest {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"cognito:username": username})
	token := header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
	return events.APIGatewayV2HTTPRequest{
		Headers: map[string]string{"authorization": "Bearer " + token},
	}
}

func TestHandleListsAccounts(t *testing.T) {
	accounts := &mockAccounts{
		listFunc: func(_ context.Context) ([]dynamo.ListedAccount, error) {
			return []dynamo.ListedAccount{
				{ID: "any", Data: []byte(`{"forwardTargets":[],"bounceSenders":[],"name":"Any"}`)},
				{ID: "broken", Data: []byte(`{`)},
				{ID: "other", Data: []byte(`{"forwardTargets":["x@y.com"],"bounceSenders":[],"name":"Other"}`)},
			}, nil
		},
	}

	h := newHandler(accounts)
	response, err := h.handle(context.Background(), internalRequest("service"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}

	var batches []record.AccountBatch
	if err := json.Unmarshal([]byte(response.Body), &batches); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want corrupt record skipped", len(batches))
	}
	if batches[0].ID != "any" || batches[1].ID != "other" {
		t.Errorf("ids = %s, %s", batches[0].ID, batches[1].ID)
	}
}

func TestHandleForbidsExternalCallers(t *testing.T) {
	h := newHandler(&mockAccounts{})
	response, err := h.handle(context.Background(), externalRequest("any"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", response.StatusCode)
	}
}
