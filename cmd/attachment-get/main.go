// Package main implements the attachment-get Lambda handler. One build
// serves both directions; EMAIL_DIRECTION selects the blob prefix.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/attachments"
	"github.com/davidbowland/emails-email-api/internal/blob"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// AttachmentRetriever fetches one stored attachment with sanitized metadata,
// or hands out a presigned download URL for it.
type AttachmentRetriever interface {
	Retrieve(ctx context.Context, direction, accountID, messageID, attachmentID string) (*attachments.Content, error)
	RetrieveURL(ctx context.Context, direction, accountID, messageID, attachmentID string) (string, error)
}

// handler implements the attachment-get logic.
type handler struct {
	attachments AttachmentRetriever
	direction   string

	// redirect switches the response from proxied bytes to a 302 pointing
	// at a presigned download URL, keeping large attachments off the
	// Lambda payload limit.
	redirect bool
}

// newHandler creates a new handler.
func newHandler(retriever AttachmentRetriever, direction string, redirect bool) *handler {
	return &handler{attachments: retriever, direction: direction, redirect: redirect}
}

// handle processes a GET .../emails/{emailId}/attachments/{attachmentId}
// request. Stored metadata is sanitized before it is reflected into
// response headers.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-attachment-get")
	ctx, span := tracer.Start(ctx, "AttachmentGetHandler")
	defer span.End()

	caller, err := apigw.IdentifyCaller(request)
	if err != nil {
		return apigw.Error(http.StatusUnauthorized, "no caller identity"), nil
	}

	accountID := request.PathParameters["accountId"]
	messageID := request.PathParameters["emailId"]
	attachmentID := request.PathParameters["attachmentId"]
	if accountID == "" || messageID == "" || attachmentID == "" {
		return apigw.Error(http.StatusBadRequest, "accountId, emailId, and attachmentId are required"), nil
	}
	if !caller.CanAccess(accountID) {
		return apigw.Error(http.StatusForbidden, "forbidden"), nil
	}

	if h.redirect {
		url, err := h.attachments.RetrieveURL(ctx, h.direction, accountID, messageID, attachmentID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to presign attachment download",
				slog.String("account_id", accountID),
				slog.String("message_id", messageID),
				slog.String("attachment_id", attachmentID),
				slog.String("error", err.Error()),
			)
			return apigw.Error(http.StatusInternalServerError, "failed to read attachment"), nil
		}
		return apigw.Redirect(url), nil
	}

	content, err := h.attachments.Retrieve(ctx, h.direction, accountID, messageID, attachmentID)
	if errors.Is(err, blob.ErrObjectNotFound) {
		return apigw.Error(http.StatusNotFound, "attachment not found"), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch attachment",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("attachment_id", attachmentID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read attachment"), nil
	}
	defer content.Body.Body.Close()

	body, err := io.ReadAll(content.Body.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read attachment body",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("attachment_id", attachmentID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read attachment"), nil
	}

	return apigw.Binary(content.ContentType, content.Filename, content.Size, body), nil
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

	client := s3.NewFromConfig(cfg)
	blobs := blob.NewStore(client, s3.NewPresignClient(client), os.Getenv("EMAIL_BUCKET_NAME"))
	manager := attachments.NewManager(blobs, logger, false)

	h := newHandler(manager, os.Getenv("EMAIL_DIRECTION"), os.Getenv("ATTACHMENT_REDIRECT") == "true")
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
