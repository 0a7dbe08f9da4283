// Package main implements the email-delete Lambda handler. One build serves
// both directions; EMAIL_DIRECTION selects the table and blob prefix.
package main

import (
	"context"
	"encoding/json"
	"errors"
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
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/attachments"
	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EmailStore defines the interface for reading and deleting email records.
type EmailStore interface {
	Get(ctx context.Context, accountID, messageID string) ([]byte, error)
	Delete(ctx context.Context, accountID, messageID string) error
}

// BlobCleaner removes a message body and its attachment blobs.
type BlobCleaner interface {
	Cleanup(ctx context.Context, direction, accountID, messageID string, attachments []record.EmailAttachment)
}

// handler implements the email-delete logic.
type handler struct {
	emails    EmailStore
	cleaner   BlobCleaner
	direction string
}

// newHandler creates a new handler.
func newHandler(emails EmailStore, cleaner BlobCleaner, direction string) *handler {
	return &handler{emails: emails, cleaner: cleaner, direction: direction}
}

// handle processes a DELETE .../emails/{emailId} request. The metadata
// delete is authoritative; blob deletes run afterwards and their failures
// never change the response.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-email-delete")
	ctx, span := tracer.Start(ctx, "EmailDeleteHandler")
	defer span.End()

	caller, err := apigw.IdentifyCaller(request)
	if err != nil {
		return apigw.Error(http.StatusUnauthorized, "no caller identity"), nil
	}

	accountID := request.PathParameters["accountId"]
	messageID := request.PathParameters["emailId"]
	if accountID == "" || messageID == "" {
		return apigw.Error(http.StatusBadRequest, "accountId and emailId are required"), nil
	}
	if !caller.CanAccess(accountID) {
		return apigw.Error(http.StatusForbidden, "forbidden"), nil
	}

	data, err := h.emails.Get(ctx, accountID, messageID)
	if errors.Is(err, dynamo.ErrNotFound) {
		return apigw.Error(http.StatusNotFound, "email not found"), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to delete email"), nil
	}

	var email record.Email
	if err := json.Unmarshal(data, &email); err != nil {
		logger.ErrorContext(ctx, "Stored email record is corrupt",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to delete email"), nil
	}

	if err := h.emails.Delete(ctx, accountID, messageID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete email record",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to delete email"), nil
	}

	h.cleaner.Cleanup(ctx, h.direction, accountID, messageID, email.Attachments)

	return apigw.JSON(http.StatusOK, email), nil
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

	emails := dynamo.NewEmailStore(dynamodb.NewFromConfig(cfg), os.Getenv("DYNAMODB_EMAIL_TABLE_NAME"))

	client := s3.NewFromConfig(cfg)
	blobs := blob.NewStore(client, s3.NewPresignClient(client), os.Getenv("EMAIL_BUCKET_NAME"))
	cleaner := attachments.NewManager(blobs, logger, false)

	h := newHandler(emails, cleaner, os.Getenv("EMAIL_DIRECTION"))
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
