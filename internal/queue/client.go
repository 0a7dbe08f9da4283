// Package queue is the client for the external email queue API, the
// provider that actually sends and bounces mail.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/davidbowland/emails-email-api/internal/record"
)

// Errors returned by queue operations.
var (
	ErrRejected   = errors.New("queue rejected request")
	ErrServerFail = errors.New("queue server error")
)

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client submits send and bounce requests to the queue API. Requests are
// not retried: the queue owns delivery retries, and a duplicate submission
// would send the email twice.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// NewClient creates a queue Client.
func NewClient(baseURL, apiKey string, httpClient HTTPDoer) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// SendResponse is the queue's acknowledgement of a send request.
type SendResponse struct {
	MessageID string `json:"messageId"`
}

// SendEmail submits an outbound email for delivery and returns the queue's
// message id for it.
func (c *Client) SendEmail(ctx context.Context, email *record.EmailOutbound) (*SendResponse, error) {
	body, err := c.post(ctx, "/emails", email)
	if err != nil {
		return nil, err
	}

	var response SendResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerFail, err)
	}
	return &response, nil
}

// BounceEmail asks the queue to emit a bounce for a received email.
func (c *Client) BounceEmail(ctx context.Context, bounce *record.BounceRequest) error {
	_, err := c.post(ctx, "/bounces", bounce)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerFail, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerFail, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrServerFail, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRejected, path, resp.StatusCode)
	}
	return body, nil
}
