// Package main implements the account-delete Lambda handler.
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
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// AccountStore defines the interface for account read-then-delete.
type AccountStore interface {
	Get(ctx context.Context, accountID string) ([]byte, error)
	Delete(ctx context.Context, accountID string) error
}

// handler implements the account-delete logic.
type handler struct {
	accounts AccountStore
}

// newHandler creates a new handler.
func newHandler(accounts AccountStore) *handler {
	return &handler{accounts: accounts}
}

// handle processes a DELETE /accounts/{accountId} request. The response
// carries the deleted record; deleting an absent account is a 204.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-account-delete")
	ctx, span := tracer.Start(ctx, "AccountDeleteHandler")
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

	data, err := h.accounts.Get(ctx, accountID)
	if errors.Is(err, dynamo.ErrNotFound) {
		return apigw.NoContent(), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to delete account"), nil
	}

	if err := h.accounts.Delete(ctx, accountID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to delete account"), nil
	}

	var account record.Account
	if err := json.Unmarshal(data, &account); err != nil {
		// The record is gone either way; return what we had.
		logger.ErrorContext(ctx, "Deleted account record was corrupt",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.NoContent(), nil
	}

	return apigw.JSON(http.StatusOK, account), nil
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

	h := newHandler(accounts)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
