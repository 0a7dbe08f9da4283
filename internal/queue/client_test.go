package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/davidbowland/emails-email-api/internal/record"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestSendEmail(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	doer := &mockDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return jsonResponse(http.StatusOK, `{"messageId":"queue-message-1"}`), nil
		},
	}

	client := NewClient("https://queue.example.com/v1", "secret-key", doer)
	response, err := client.SendEmail(context.Background(), &record.EmailOutbound{
		From:    record.EmailAddress{Address: "any@emails.domain.com"},
		Subject: "Hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.MessageID != "queue-message-1" {
		t.Errorf("message id = %q", response.MessageID)
	}

	if captured.URL.String() != "https://queue.example.com/v1/emails" {
		t.Errorf("url = %s", captured.URL)
	}
	if captured.Header.Get("x-api-key") != "secret-key" {
		t.Errorf("api key header = %q", captured.Header.Get("x-api-key"))
	}
	if captured.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", captured.Header.Get("Content-Type"))
	}

	var sent record.EmailOutbound
	if err := json.Unmarshal(capturedBody, &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent.From.Address != "any@emails.domain.com" {
		t.Errorf("sent from = %q", sent.From.Address)
	}
}

func TestSendEmailServerError(t *testing.T) {
	doer := &mockDoer{
		doFunc: func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusInternalServerError, ""), nil
		},
	}

	client := NewClient("https://queue.example.com/v1", "secret-key", doer)
	if _, err := client.SendEmail(context.Background(), &record.EmailOutbound{}); !errors.Is(err, ErrServerFail) {
		t.Errorf("err = %v, want ErrServerFail", err)
	}
}

func TestSendEmailRejected(t *testing.T) {
	doer := &mockDoer{
		doFunc: func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusForbidden, ""), nil
		},
	}

	client := NewClient("https://queue.example.com/v1", "secret-key", doer)
	if _, err := client.SendEmail(context.Background(), &record.EmailOutbound{}); !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestSendEmailDoesNotRetry(t *testing.T) {
	calls := 0
	doer := &mockDoer{
		doFunc: func(_ *http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("connection reset")
		},
	}

	client := NewClient("https://queue.example.com/v1", "secret-key", doer)
	if _, err := client.SendEmail(context.Background(), &record.EmailOutbound{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBounceEmail(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	doer := &mockDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return jsonResponse(http.StatusNoContent, ""), nil
		},
	}

	client := NewClient("https://queue.example.com/v1", "secret-key", doer)
	err := client.BounceEmail(context.Background(), &record.BounceRequest{
		BounceSender: "any@emails.domain.com",
		MessageID:    "message-1",
		Recipients:   []string{"sender@domain.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.URL.String() != "https://queue.example.com/v1/bounces" {
		t.Errorf("url = %s", captured.URL)
	}

	var bounce record.BounceRequest
	if err := json.Unmarshal(capturedBody, &bounce); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if bounce.MessageID != "message-1" || bounce.BounceSender != "any@emails.domain.com" {
		t.Errorf("bounce = %+v", bounce)
	}
}
