// Package main implements the attachment-upload Lambda handler. Clients
// stage attachment blobs here before submitting a send request that
// references them by id.
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

// UploadStager allocates presigned upload slots for staged attachments.
type UploadStager interface {
	StageUpload(ctx context.Context, accountID string, metadata map[string]string) (*attachments.StagedUpload, error)
}

// handler implements the attachment-upload logic.
type handler struct {
	attachments UploadStager
}

// newHandler creates a new handler.
func newHandler(stager UploadStager) *handler {
	return &handler{attachments: stager}
}

// handle processes a POST /sent/attachments request. The optional body is a
// flat metadata object bound to the upload; it comes back sanitized when
// the attachment is later served.
func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("emails-attachment-upload")
	ctx, span := tracer.Start(ctx, "AttachmentUploadHandler")
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

	var metadata map[string]string
	body, err := apigw.ParseBody(request)
	if err != nil {
		return apigw.Error(http.StatusBadRequest, "invalid request body"), nil
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &metadata); err != nil {
			return apigw.Error(http.StatusBadRequest, "metadata must be a flat JSON object of strings"), nil
		}
	}

	upload, err := h.attachments.StageUpload(ctx, accountID, metadata)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to stage upload",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return apigw.Error(http.StatusInternalServerError, "failed to stage upload"), nil
	}

	return apigw.JSON(http.StatusCreated, upload), nil
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

	h := newHandler(manager)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
