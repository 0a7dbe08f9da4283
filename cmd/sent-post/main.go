// Package main implements the sent-post Lambda handler: the outbound send
// path. The queue submission happens before any record is written, so a
// stored sent email always corresponds to a real submission.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/attachments"
	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/outbound"
	"github.com/davidbowland/emails-email-api/internal/queue"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// AccountGetter defines the interface for reading account records.
type AccountGetter interface {
	Get(ctx context.Context, accountID string) ([]byte, error)
}

// EmailPutter defines the interface for storing email records.
type EmailPutter interface {
	Put(ctx context.Context, accountID, messageID string, data []byte) error
}

// BlobPutter defines the interface for writing message blobs.
type BlobPutter interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
}

// Sender submits outbound emails to the send provider.
type Sender interface {
	SendEmail(ctx context.Context, email *record.EmailOutbound) (*queue.SendResponse, error)
}

// AttachmentPromoter moves staged attachment blobs onto a sent message.
type AttachmentPromoter interface {
	Promote(ctx context.Context, accountID, messageID string, attachments []record.OutboundAttachment) ([]record.OutboundAttachment, error)
	DiscardStaged(ctx context.Context, accountID string, attachments []record.OutboundAttachment)
}

// handler implements the sent-post logic.
type handler struct {
	accounts    AccountGetter
	emails      EmailPutter
	blobs       BlobPutter
	queue       Sender
	attachments AttachmentPromoter
	emailDomain string
}

// newHandler creates a new handler.
func newHandler(accounts AccountGetter, emails EmailPutter, blobs BlobPutter, sender Sender, promoter AttachmentPromoter, emailDomain string) *handler {
	return &handler{
		accounts:    accounts,
		emails:      emails,
		blobs:       blobs,
		queue:       sender,
		attachments: promoter,
		emailDomain: emailDomain,
	}
}

// sendResult is the response body for a successful send.
type sendResult struct {
	Email     record.Email `json:"email"`
	MessageID string       `json:"messageId"`
}

// handle processes a POST /sent/emails request. The from, sender, and
// replyTo addresses are overwritten with the account's outbound identity;
// callers cannot spoof them.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-sent-post")
	ctx, span := tracer.Start(ctx, "SentPostHandler")
	defer span.End()

	caller, err := apigw.IdentifyCaller(request)
	if err != nil {
		return apigw.Error(http.StatusUnauthorized, "no caller identity"), nil
	}

	accountID := request.PathParameters["accountId"]
	if accountID == "" {
		return apigw.Error(http.StatusBadRequest, "accountId is required"), nil
	}
	if !caller.CanAccess(accountID) {
		return apigw.Error(http.StatusForbidden, "forbidden"), nil
	}

	body, err := apigw.ParseBody(request)
	if err != nil {
		return apigw.Error(http.StatusBadRequest, "invalid request body"), nil
	}

	accountData, err := h.accounts.Get(ctx, accountID)
	if errors.Is(err, dynamo.ErrNotFound) {
		return apigw.Error(http.StatusNotFound, "account not found"), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to send email"), nil
	}
	var account record.Account
	if err := json.Unmarshal(accountData, &account); err != nil {
		logger.ErrorContext(ctx, "Stored account record is corrupt",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to send email"), nil
	}

	from := record.EmailAddress{Address: accountID + "@" + h.emailDomain, Name: account.Name}
	email, err := record.FormatEmailOutbound(body, from)
	if err != nil {
		var validation *record.ValidationError
		if errors.As(err, &validation) {
			return apigw.Error(http.StatusBadRequest, validation.Message), nil
		}
		return apigw.Error(http.StatusBadRequest, "invalid email"), nil
	}

	response, err := h.queue.SendEmail(ctx, &email)
	if err != nil {
		if errors.Is(err, queue.ErrRejected) {
			return apigw.Error(http.StatusBadRequest, "email rejected by send provider"), nil
		}
		logger.ErrorContext(ctx, "Failed to submit email",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to send email"), nil
	}
	messageID := response.MessageID

	staged := email.Attachments
	defer h.attachments.DiscardStaged(ctx, accountID, staged)

	promoted, err := h.attachments.Promote(ctx, accountID, messageID, staged)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to promote attachments",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to record sent email"), nil
	}
	email.Attachments = promoted

	summary := outbound.ConvertToEmail(email)
	contents := outbound.ConvertToContents(messageID, email, summary.Timestamp)

	contentsData, err := json.Marshal(contents)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize contents",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to record sent email"), nil
	}
	key := blob.MessageKey(blob.DirectionSent, accountID, messageID)
	if err := h.blobs.Put(ctx, key, "application/json", bytes.NewReader(contentsData)); err != nil {
		logger.ErrorContext(ctx, "Failed to store contents blob",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to record sent email"), nil
	}

	summaryData, err := json.Marshal(summary)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to record sent email"), nil
	}
	if err := h.emails.Put(ctx, accountID, messageID, summaryData); err != nil {
		logger.ErrorContext(ctx, "Failed to store email record",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to record sent email"), nil
	}

	return apigw.JSON(http.StatusOK, sendResult{Email: summary, MessageID: messageID}), nil
}

func main() {
	ctx := context.Background()

	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	accounts := dynamo.NewAccountStore(dynamodb.NewFromConfig(cfg), os.Getenv("DYNAMODB_ACCOUNTS_TABLE_NAME"))
	emails := dynamo.NewEmailStore(dynamodb.NewFromConfig(cfg), os.Getenv("DYNAMODB_EMAIL_TABLE_NAME"))

	client := s3.NewFromConfig(cfg)
	blobs := blob.NewStore(client, s3.NewPresignClient(client), os.Getenv("EMAIL_BUCKET_NAME"))
	promoter := attachments.NewManager(blobs, logger, os.Getenv("ATTACHMENT_COPY_STRICT") == "true")

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	sender := queue.NewClient(os.Getenv("QUEUE_API_URL"), os.Getenv("QUEUE_API_KEY"), httpClient)

	h := newHandler(accounts, emails, blobs, sender, promoter, os.Getenv("EMAIL_DOMAIN"))
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
