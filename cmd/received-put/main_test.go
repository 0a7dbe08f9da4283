package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
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

type mockEmails struct {
	putFunc func(ctx context.Context, accountID, messageID string, data []byte) error
}

func (m *mockEmails) Put(ctx context.Context, accountID, messageID string, data []byte) error {
	return m.putFunc(ctx, accountID, messageID, data)
}

type mockPublisher struct {
	publishFunc func(ctx context.Context, accountID, messageID string, forwardTargets []string) error
}

func (m *mockPublisher) PublishReceived(ctx context.Context, accountID, messageID string, forwardTargets []string) error {
	return m.publishFunc(ctx, accountID, messageID, forwardTargets)
}

func internalRequest(accountID, messageID, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		Body:           body,
		Headers:        map[string]string{"x-user-name": "pipeline"},
		PathParameters: map[string]string{"accountId": accountID, "emailId": messageID},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainPrefix: "emails-email-api-internal",
		},
	}
}

func externalRequest(username, accountID, messageID, body string) events.APIGatewayV2HTTPRequest {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"cognito:username": username})
	token := header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
	return events.APIGatewayV2HTTPRequest{
		Body:           body,
		Headers:        map[string]string{"authorization": "Bearer " + token},
		PathParameters: map[string]string{"accountId": accountID, "emailId": messageID},
	}
}

const inboundEmail = `{"from":"sender@domain.com","subject":"Hello","to":["any@emails.domain.com"]}`

func TestHandleStoresAndNotifies(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, accountID string) ([]byte, error) {
			if accountID != "any" {
				t.Errorf("accountID = %q", accountID)
			}
			return []byte(`{"bounceSenders":[],"forwardTargets":["target@domain.com"],"name":"Any"}`), nil
		},
	}
	var stored []byte
	emails := &mockEmails{
		putFunc: func(_ context.Context, accountID, messageID string, data []byte) error {
			if accountID != "any" || messageID != "message-1" {
				t.Errorf("key = %s/%s", accountID, messageID)
			}
			stored = data
			return nil
		},
	}
	var notified []string
	publisher := &mockPublisher{
		publishFunc: func(_ context.Context, accountID, messageID string, forwardTargets []string) error {
			if accountID != "any" || messageID != "message-1" {
				t.Errorf("notify key = %s/%s", accountID, messageID)
			}
			notified = forwardTargets
			return nil
		},
	}

	h := newHandler(accounts, emails, publisher)
	response, err := h.handle(context.Background(), internalRequest("any", "message-1", inboundEmail))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", response.StatusCode, response.Body)
	}
	if !strings.Contains(string(stored), `"viewed":false`) {
		t.Errorf("stored = %s", stored)
	}
	if len(notified) != 1 || notified[0] != "target@domain.com" {
		t.Errorf("notified = %v", notified)
	}
}

func TestHandleUnknownAccountFallsBackToAdmin(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, accountID string) ([]byte, error) {
			if accountID == "admin" {
				return []byte(`{"bounceSenders":[],"forwardTargets":[],"name":"Admin"}`), nil
			}
			return nil, dynamo.ErrNotFound
		},
	}
	storedUnder := ""
	emails := &mockEmails{
		putFunc: func(_ context.Context, accountID, _ string, _ []byte) error {
			storedUnder = accountID
			return nil
		},
	}
	publisher := &mockPublisher{
		publishFunc: func(_ context.Context, accountID, _ string, _ []string) error {
			if accountID != "admin" {
				t.Errorf("notify accountID = %q", accountID)
			}
			return nil
		},
	}

	h := newHandler(accounts, emails, publisher)
	response, err := h.handle(context.Background(), internalRequest("unknown", "message-1", inboundEmail))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	if storedUnder != "admin" {
		t.Errorf("stored under %q", storedUnder)
	}
}

func TestHandleNotifyFailureDoesNotFailRequest(t *testing.T) {
	accounts := &mockAccounts{
		getFunc: func(_ context.Context, _ string) ([]byte, error) {
			return []byte(`{"bounceSenders":[],"forwardTargets":["target@domain.com"],"name":"Any"}`), nil
		},
	}
	emails := &mockEmails{
		putFunc: func(_ context.Context, _, _ string, _ []byte) error {
			return nil
		},
	}
	publisher := &mockPublisher{
		publishFunc: func(_ context.Context, _, _ string, _ []string) error {
			return errors.New("queue unavailable")
		},
	}

	h := newHandler(accounts, emails, publisher)
	response, err := h.handle(context.Background(), internalRequest("any", "message-1", inboundEmail))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleRejectsExternalCaller(t *testing.T) {
	h := newHandler(&mockAccounts{}, &mockEmails{}, &mockPublisher{})
	response, err := h.handle(context.Background(), externalRequest("any", "any", "message-1", inboundEmail))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleRejectsInvalidEmail(t *testing.T) {
	h := newHandler(&mockAccounts{}, &mockEmails{}, &mockPublisher{})
	response, err := h.handle(context.Background(), internalRequest("any", "message-1", `{"subject":"no from"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", response.StatusCode)
	}
}
