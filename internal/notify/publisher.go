// Package notify publishes received-email notifications to an async queue
// so the forwarding service can react without being in the request path.
package notify

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Publisher publishes received-email notifications.
type Publisher interface {
	PublishReceived(ctx context.Context, accountID, messageID string, forwardTargets []string) error
}

// ReceivedMessage is the SQS message body for a received email.
type ReceivedMessage struct {
	AccountID      string   `json:"accountId"`
	ForwardTargets []string `json:"forwardTargets"`
	MessageID      string   `json:"messageId"`
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes received-email notifications to an SQS queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
	}
}

// PublishReceived sends a received-email notification. Accounts with no
// forward targets publish nothing.
func (p *SQSPublisher) PublishReceived(ctx context.Context, accountID, messageID string, forwardTargets []string) error {
	if len(forwardTargets) == 0 {
		return nil
	}

	msg := ReceivedMessage{
		AccountID:      accountID,
		ForwardTargets: forwardTargets,
		MessageID:      messageID,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	bodyStr := string(body)
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &bodyStr,
	})
	return err
}
