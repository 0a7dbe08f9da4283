// Package main implements the account-get-all Lambda handler.
package main

import (
	"context"
	"encoding/json"
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

// AccountLister defines the interface for listing account records.
type AccountLister interface {
	List(ctx context.Context) ([]dynamo.ListedAccount, error)
}

// handler implements the account-get-all logic.
type handler struct {
	accounts AccountLister
}

// newHandler creates a new handler.
func newHandler(accounts AccountLister) *handler {
	return &handler{accounts: accounts}
}

// handle processes a GET /accounts request. Listing every account is an
// internal-service operation.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-account-get-all")
	ctx, span := tracer.Start(ctx, "AccountGetAllHandler")
	defer span.End()

	caller, err := apigw.IdentifyCaller(request)
	if err != nil {
		return apigw.Error(http.StatusUnauthorized, "no caller identity"), nil
	}
	if !caller.Internal {
		return apigw.Error(http.StatusForbidden, "forbidden"), nil
	}

	listed, err := h.accounts.List(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list accounts",
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to list accounts"), nil
	}

	batches := make([]record.AccountBatch, 0, len(listed))
	for _, item := range listed {
		var account record.Account
		if err := json.Unmarshal(item.Data, &account); err != nil {
			logger.ErrorContext(ctx, "Skipping corrupt account record",
				slog.String("account_id", item.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		batches = append(batches, record.AccountBatch{Data: account, ID: item.ID})
	}

	return apigw.JSON(http.StatusOK, batches), nil
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
