// Package main implements the email-get Lambda handler. One build serves
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
	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/bounce"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EmailGetter defines the interface for reading email summary records.
type EmailGetter interface {
	Get(ctx context.Context, accountID, messageID string) ([]byte, error)
}

// handler implements the email-get logic.
type handler struct {
	emails    EmailGetter
	direction string
}

// newHandler creates a new handler.
func newHandler(emails EmailGetter, direction string) *handler {
	return &handler{emails: emails, direction: direction}
}

// emailResponse is an email summary annotated for the received direction.
type emailResponse struct {
	record.Email
	CanBeBounced *bool `json:"canBeBounced,omitempty"`
}

// handle processes a GET .../emails/{emailId} request.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-email-get")
	ctx, span := tracer.Start(ctx, "EmailGetHandler")
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
		return apigw.Error(http.StatusInternalServerError, "failed to read email"), nil
	}

	var email record.Email
	if err := json.Unmarshal(data, &email); err != nil {
		logger.ErrorContext(ctx, "Stored email record is corrupt",
			slog.String("account_id", accountID),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to read email"), nil
	}

	response := emailResponse{Email: email}
	if h.direction == blob.DirectionReceived {
		bounceable := bounce.CanEmailBeBounced(email)
		response.CanBeBounced = &bounceable
	}

	return apigw.JSON(http.StatusOK, response), nil
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
