// Package main implements the email-get-all Lambda handler. One build
// serves both directions; EMAIL_DIRECTION selects the table.
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
	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/bounce"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EmailLister defines the interface for listing email summary records.
type EmailLister interface {
	List(ctx context.Context, accountID string) ([]dynamo.ListedEmail, error)
}

// handler implements the email-get-all logic.
type handler struct {
	emails    EmailLister
	direction string
}

// newHandler creates a new handler.
func newHandler(emails EmailLister, direction string) *handler {
	return &handler{emails: emails, direction: direction}
}

// emailBatch pairs a summary with its keys, annotated for the received
// direction.
type emailBatch struct {
	AccountID    string       `json:"accountId"`
	Data         record.Email `json:"data"`
	ID           string       `json:"id"`
	CanBeBounced *bool        `json:"canBeBounced,omitempty"`
}

// handle processes a GET .../emails request.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-email-get-all")
	ctx, span := tracer.Start(ctx, "EmailGetAllHandler")
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

	listed, err := h.emails.List(ctx, accountID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list emails",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to list emails"), nil
	}

	batches := make([]emailBatch, 0, len(listed))
	for _, item := range listed {
		var email record.Email
		if err := json.Unmarshal(item.Data, &email); err != nil {
			logger.ErrorContext(ctx, "Skipping corrupt email record",
				slog.String("account_id", accountID),
				slog.String("message_id", item.MessageID),
				slog.String("error", err.Error()),
			)
			continue
		}
		batch := emailBatch{AccountID: accountID, Data: email, ID: item.MessageID}
		if h.direction == blob.DirectionReceived {
			bounceable := bounce.CanEmailBeBounced(email)
			batch.CanBeBounced = &bounceable
		}
		batches = append(batches, batch)
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

	emails := dynamo.NewEmailStore(dynamodb.NewFromConfig(cfg), os.Getenv("DYNAMODB_EMAIL_TABLE_NAME"))

	h := newHandler(emails, os.Getenv("EMAIL_DIRECTION"))
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
