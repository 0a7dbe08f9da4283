// Package main implements the email-patch Lambda handler. One build serves
// both directions; EMAIL_DIRECTION selects the table.
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
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/jsonpatch"
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

// handler implements the email-patch logic.
type handler struct {
	emails EmailStore
}

// newHandler creates a new handler.
func newHandler(emails EmailStore) *handler {
	return &handler{emails: emails}
}

// handle processes a PATCH .../emails/{emailId} request. Only the viewed
// flag is patchable; the patch is gated before the stored record is read.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-email-patch")
	ctx, span := tracer.Start(ctx, "EmailPatchHandler")
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

	body, err := apigw.ParseBody(request)
	if err != nil {
		return apigw.Error(http.StatusBadRequest, "invalid request body"), nil
	}

	operations, err := jsonpatch.Decode(body)
	if err != nil {
		return apigw.Error(http.StatusBadRequest, "invalid patch document"), nil
	}
	if err := jsonpatch.Check(operations, jsonpatch.EmailRules); err != nil {
		return apigw.Error(http.StatusForbidden, "patch targets a protected path"), nil
	}

	current, err := h.emails.Get(ctx, accountID, messageID)
	if errors.Is(err, dynamo.ErrNotFound) {
		return apigw.Error(http.StatusNotFound, "email not found"), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to patch email"), nil
	}

	patched, err := jsonpatch.Apply(current, operations)
	if err != nil {
		if errors.Is(err, jsonpatch.ErrTestFailed) || errors.Is(err, jsonpatch.ErrPathNotFound) {
			return apigw.Error(http.StatusBadRequest, "patch does not apply to the stored record"), nil
		}
		return apigw.Error(http.StatusBadRequest, "invalid patch document"), nil
	}

	var email record.Email
	if err := json.Unmarshal(patched, &email); err != nil {
		return apigw.Error(http.StatusBadRequest, "patched email is invalid"), nil
	}

	data, err := json.Marshal(email)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to patch email"), nil
	}

	if err := h.emails.Put(ctx, accountID, messageID, data); err != nil {
		logger.ErrorContext(ctx, "Failed to store email",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to patch email"), nil
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

	h := newHandler(emails)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
