// Package main implements the received-bounce Lambda handler.
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
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/bounce"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/queue"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EmailStore defines the interface for email read-modify-write.
type EmailStore interface {
	Get(ctx context.Context, accountID, messageID string) ([]byte, error)
	Put(ctx context.Context, accountID, messageID string, data []byte) error
}

// Bouncer asks the send provider to emit a bounce.
type Bouncer interface {
	BounceEmail(ctx context.Context, bounce *record.BounceRequest) error
}

// handler implements the received-bounce logic.
type handler struct {
	emails EmailStore
	queue  Bouncer
}

// newHandler creates a new handler.
func newHandler(emails EmailStore, bouncer Bouncer) *handler {
	return &handler{emails: emails, queue: bouncer}
}

// handle processes a POST /received/emails/{emailId}/bounce request. An
// already-bounced or expired email is rejected before the provider is
// called; the bounced flag only ever transitions to true.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-received-bounce")
	ctx, span := tracer.Start(ctx, "ReceivedBounceHandler")
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
		return apigw.Error(http.StatusInternalServerError, "failed to bounce email"), nil
	}

	var email record.Email
	if err := json.Unmarshal(data, &email); err != nil {
		logger.ErrorContext(ctx, "Stored email record is corrupt",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to bounce email"), nil
	}

	if email.Bounced {
		return apigw.Error(http.StatusBadRequest, "email has already been bounced"), nil
	}
	if !bounce.CanEmailBeBounced(email) {
		return apigw.Error(http.StatusBadRequest, "email is too old to bounce"), nil
	}

	bounceSender, ok := bounce.SelectBounceSender(accountID, email.To)
	if !ok {
		return apigw.Error(http.StatusBadRequest, "no qualifying bounce sender"), nil
	}

	bounceRequest := record.BounceRequest{
		BounceSender: bounceSender,
		MessageID:    messageID,
		Recipients:   email.To,
	}
	if err := h.queue.BounceEmail(ctx, &bounceRequest); err != nil {
		if errors.Is(err, queue.ErrRejected) {
			return apigw.Error(http.StatusBadRequest, "bounce rejected by send provider"), nil
		}
		logger.ErrorContext(ctx, "Failed to submit bounce",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to bounce email"), nil
	}

	email.Bounced = true
	updated, err := json.Marshal(email)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to bounce email"), nil
	}
	if err := h.emails.Put(ctx, accountID, messageID, updated); err != nil {
		// The bounce has already been submitted; the flag write is what
		// failed.
		logger.ErrorContext(ctx, "Failed to record bounced flag after bounce submission",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to bounce email"), nil
	}

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

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	bouncer := queue.NewClient(os.Getenv("QUEUE_API_URL"), os.Getenv("QUEUE_API_KEY"), httpClient)

	h := newHandler(emails, bouncer)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
