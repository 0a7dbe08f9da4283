// Package main implements the received-put Lambda handler. The inbound
// pipeline records each received email here after writing the raw MIME
// blob; emails for unknown accounts are recorded under the admin account.
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
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/davidbowland/emails-email-api/internal/apigw"
	"github.com/davidbowland/emails-email-api/internal/dynamo"
	"github.com/davidbowland/emails-email-api/internal/notify"
	"github.com/davidbowland/emails-email-api/internal/record"
)

const adminAccountID = "admin"

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// AccountGetter defines the interface for reading account records.
type AccountGetter interface {
	Get(ctx context.Context, accountID string) ([]byte, error)
}

// EmailPutter defines the interface for storing email records.
type EmailPutter interface {
	Put(ctx context.Context, accountID, messageID string, data []byte) error
}

// handler implements the received-put logic.
type handler struct {
	accounts  AccountGetter
	emails    EmailPutter
	publisher notify.Publisher
}

// newHandler creates a new handler.
func newHandler(accounts AccountGetter, emails EmailPutter, publisher notify.Publisher) *handler {
	return &handler{accounts: accounts, emails: emails, publisher: publisher}
}

// handle processes a PUT /received/emails/{emailId} request. The record
// write is authoritative; the forwarding notification is best effort and
// never fails the request.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-received-put")
	ctx, span := tracer.Start(ctx, "ReceivedPutHandler")
	defer span.End()

	caller, err := apigw.IdentifyCaller(request)
	if err != nil {
		return apigw.Error(http.StatusUnauthorized, "no caller identity"), nil
	}
	if !caller.Internal {
		return apigw.Error(http.StatusForbidden, "forbidden"), nil
	}

	accountID := request.PathParameters["accountId"]
	messageID := request.PathParameters["emailId"]
	if accountID == "" || messageID == "" {
		return apigw.Error(http.StatusBadRequest, "accountId and emailId are required"), nil
	}

	body, err := apigw.ParseBody(request)
	if err != nil {
		return apigw.Error(http.StatusBadRequest, "invalid request body"), nil
	}

	email, err := record.FormatEmail(body)
	if err != nil {
		var validation *record.ValidationError
		if errors.As(err, &validation) {
			return apigw.Error(http.StatusBadRequest, validation.Message), nil
		}
		return apigw.Error(http.StatusBadRequest, "invalid email"), nil
	}

	targetAccount, account, err := h.resolveAccount(ctx, accountID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to store email"), nil
	}

	data, err := json.Marshal(email)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialize email",
			slog.String("account_id", targetAccount),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to store email"), nil
	}

	if err := h.emails.Put(ctx, targetAccount, messageID, data); err != nil {
		logger.ErrorContext(ctx, "Failed to store email",
			slog.String("account_id", targetAccount),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to store email"), nil
	}

	if err := h.publisher.PublishReceived(ctx, targetAccount, messageID, account.ForwardTargets); err != nil {
		logger.ErrorContext(ctx, "Failed to publish received notification",
			slog.String("account_id", targetAccount),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}

	return apigw.JSON(http.StatusOK, email), nil
}

// resolveAccount finds the account an email should be recorded under,
// falling back to the admin account when the target does not exist. An
// absent admin account still records the email, with no forward targets.
func (h *handler) resolveAccount(ctx context.Context, accountID string) (string, record.Account, error) {
	for _, candidate := range []string{accountID, adminAccountID} {
		data, err := h.accounts.Get(ctx, candidate)
		if errors.Is(err, dynamo.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", record.Account{}, err
		}

		var account record.Account
		if err := json.Unmarshal(data, &account); err != nil {
			logger.ErrorContext(ctx, "Stored account record is corrupt",
				slog.String("account_id", candidate),
				slog.String("error", err.Error()),
			)
			continue
		}
		return candidate, account, nil
	}
	return adminAccountID, record.Account{}, nil
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
	emails := dynamo.NewEmailStore(dynamodb.NewFromConfig(cfg), os.Getenv("DYNAMODB_EMAIL_TABLE_NAME"))
	publisher := notify.NewSQSPublisher(sqs.NewFromConfig(cfg), os.Getenv("NOTIFICATION_QUEUE_URL"))

	h := newHandler(accounts, emails, publisher)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
