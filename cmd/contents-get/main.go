// Package main implements the contents-get Lambda handler. One build serves
// both directions; EMAIL_DIRECTION selects the blob prefix and the format
// stored under it. Received messages are stored as raw MIME and parsed on
// read; sent messages are stored as canonical contents JSON.
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
	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/parsedmail"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// BlobGetter defines the interface for reading message blobs.
type BlobGetter interface {
	Get(ctx context.Context, key string) (*blob.Object, error)
}

// handler implements the contents-get logic.
type handler struct {
	blobs     BlobGetter
	direction string
}

// newHandler creates a new handler.
func newHandler(blobs BlobGetter, direction string) *handler {
	return &handler{blobs: blobs, direction: direction}
}

// handle processes a GET .../emails/{emailId}/contents request.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-contents-get")
	ctx, span := tracer.Start(ctx, "ContentsGetHandler")
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

	object, err := h.blobs.Get(ctx, blob.MessageKey(h.direction, accountID, messageID))
	if errors.Is(err, blob.ErrObjectNotFound) {
		return apigw.Error(http.StatusNotFound, "email contents not found"), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch message blob",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read email contents"), nil
	}
	defer object.Body.Close()

	raw, err := io.ReadAll(object.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read message blob",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read email contents"), nil
	}

	if h.direction != blob.DirectionReceived {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(raw),
		}, nil
	}

	parsed, err := parsedmail.Parse(raw)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to parse message",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read email contents"), nil
	}

	return apigw.JSON(http.StatusOK, parsedmail.ConvertToContents(messageID, parsed)), nil
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

	h := newHandler(blobs, os.Getenv("EMAIL_DIRECTION"))
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
