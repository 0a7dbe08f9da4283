// Package main implements the account-put Lambda handler.
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

// AccountWriter defines the interface for storing account records.
type AccountWriter interface {
	Put(ctx context.Context, accountID string, data []byte) error
}

// handler implements the account-put logic.
type handler struct {
	accounts AccountWriter
}

// newHandler creates a new handler.
func newHandler(accounts AccountWriter) *handler {
	return &handler{accounts: accounts}
}

// handle processes a PUT /accounts/{accountId} request. The body is
// narrowed through the account formatter before anything is stored.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-account-put")
	ctx, span := tracer.Start(ctx, "AccountPutHandler")
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

	account, err := record.FormatAccount(body)
	if err != nil {
		var validation *record.ValidationError
		if errors.As(err, &validation) {
			return apigw.Error(http.StatusBadRequest, validation.Message), nil
		}
		return apigw.Error(http.StatusBadRequest, "invalid account"), nil
	}

	data, err := json.Marshal(account)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to store account"), nil
	}

	if err := h.accounts.Put(ctx, accountID, data); err != nil {
		logger.ErrorContext(ctx, "Failed to store account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to store account"), nil
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
