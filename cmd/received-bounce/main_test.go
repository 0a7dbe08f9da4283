package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/queue"
	"github.com/davidbowland/emails-email-api/internal/record"
)

type mockEmails struct {
	getFunc func(ctx context.Context, accountID, messageID string) ([]byte, error)
	putFunc func(ctx context.Context, accountID, messageID string, data []byte) error
}

func (m *mockEmails) Get(ctx context.Context, accountID, messageID string) ([]byte, error) {
	return m.getFunc(ctx, accountID, messageID)
}

func (m *mockEmails) Put(ctx context.Context, accountID, messageID string, data []byte) error {
	return m.putFunc(ctx, accountID, messageID, data)
}

type mockBouncer struct {
	bounceFunc func(ctx context.Context, bounce *record.BounceRequest) error
}

func (m *mockBouncer) BounceEmail(ctx context.Context, bounce *record.BounceRequest) error {
	return m.bounceFunc(ctx, bounce)
}

func requestFor(username, accountID, messageID string) events.APIGatewayV2HTTPRequest {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"cognito:username": username})
	token := header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
	return events.APIGatewayV2HTTPRequest{
		Headers:        map[string]string{"authorization": "Bearer " + token},
		PathParameters: map[string]string{"accountId": accountID, "emailId": messageID},
	}
}

func storedEmail(t *testing.T, timestamp int64, bounced bool) []byte {
	t.Helper()
	data, err := json.Marshal(record.Email{
		Bounced:   bounced,
		From:      "sender@domain.com",
		Subject:   "Hello",
		Timestamp: timestamp,
		To:        []string{"other@emails.domain.com", "Any@emails.domain.com"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleBouncesEmail(t *testing.T) {
	var written []byte
	emails := &mockEmails{
		getFunc: func(_ context.Context, accountID, messageID string) ([]byte, error) {
			if accountID != "any" || messageID != "message-1" {
				t.Errorf("key = %s/%s", accountID, messageID)
			}
			return storedEmail(t, time.Now().UnixMilli(), false), nil
		},
		putFunc: func(_ context.Context, _, _ string, data []byte) error {
			written = data
			return nil
		},
	}
	var submitted *record.BounceRequest
	bouncer := &mockBouncer{
		bounceFunc: func(_ context.Context, bounce *record.BounceRequest) error {
			submitted = bounce
			return nil
		},
	}

	h := newHandler(emails, bouncer)
	response, err := h.handle(context.Background(), requestFor("any", "any", "message-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", response.StatusCode, response.Body)
	}
	if submitted == nil {
		t.Fatal("bounce must be submitted")
	}
	if submitted.BounceSender != "Any@emails.domain.com" {
		t.Errorf("bounceSender = %q", submitted.BounceSender)
	}
	if len(submitted.Recipients) != 2 || submitted.Recipients[0] != "other@emails.domain.com" || submitted.Recipients[1] != "Any@emails.domain.com" {
		t.Errorf("recipients = %v, want the stored to list", submitted.Recipients)
	}
	if !strings.Contains(string(written), `"bounced":true`) {
		t.Errorf("written = %s", written)
	}
}

func TestHandleAlreadyBouncedRejectedWithoutProviderCall(t *testing.T) {
	emails := &mockEmails{
		getFunc: func(_ context.Context, _, _ string) ([]byte, error) {
			return storedEmail(t, time.Now().UnixMilli(), true), nil
		},
	}
	bouncer := &mockBouncer{
		bounceFunc: func(_ context.Context, _ *record.BounceRequest) error {
			t.Fatal("provider must not be called for an already-bounced email")
			return nil
		},
	}

	h := newHandler(emails, bouncer)
	response, err := h.handle(context.Background(), requestFor("any", "any", "message-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleExpiredEmailRejected(t *testing.T) {
	emails := &mockEmails{
		getFunc: func(_ context.Context, _, _ string) ([]byte, error) {
			return storedEmail(t, time.Now().Add(-24*time.Hour).UnixMilli(), false), nil
		},
	}
	bouncer := &mockBouncer{
		bounceFunc: func(_ context.Context, _ *record.BounceRequest) error {
			t.Fatal("provider must not be called for an expired email")
			return nil
		},
	}

	h := newHandler(emails, bouncer)
	response, err := h.handle(context.Background(), requestFor("any", "any", "message-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleNoQualifyingBounceSender(t *testing.T) {
	emails := &mockEmails{
		getFunc: func(_ context.Context, _, _ string) ([]byte, error) {
			data, _ := json.Marshal(record.Email{
				From:      "sender@domain.com",
				Subject:   "Hello",
				Timestamp: time.Now().UnixMilli(),
				To:        []string{"other@emails.domain.com"},
			})
			return data, nil
		},
	}

	h := newHandler(emails, &mockBouncer{})
	response, err := h.handle(context.Background(), requestFor("any", "any", "message-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleProviderRejection(t *testing.T) {
	emails := &mockEmails{
		getFunc: func(_ context.Context, _, _ string) ([]byte, error) {
			return storedEmail(t, time.Now().UnixMilli(), false), nil
		},
		putFunc: func(_ context.Context, _, _ string, _ []byte) error {
			t.Fatal("rejected bounce must not set the bounced flag")
			return nil
		},
	}
	bouncer := &mockBouncer{
		bounceFunc: func(_ context.Context, _ *record.BounceRequest) error {
			return fmt.Errorf("%w: /bounces returned status 400", queue.ErrRejected)
		},
	}

	h := newHandler(emails, bouncer)
	response, err := h.handle(context.Background(), requestFor("any", "any", "message-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestHandleNotFound(t *testing.T) {
	emails := &mockEmails{
		getFunc: func(_ context.Context, _, _ string) ([]byte, error) {
			return nil, dynamo.ErrNotFound
		},
	}

	h := newHandler(emails, &mockBouncer{})
	response, err := h.handle(context.Background(), requestFor("any", "any", "missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", response.StatusCode)
	}
}
