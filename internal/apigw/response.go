package apigw

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// JSON builds a JSON response.
func JSON(status int, payload any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return Error(http.StatusInternalServerError, "failed to serialize response")
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// Error builds a JSON error response with a message body.
func Error(status int, message string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]string{"message": message})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// NoContent builds an empty 204 response.
func NoContent() events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNoContent}
}

// Redirect builds a 302 redirect to the given URL.
func Redirect(url string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": url},
	}
}

// Binary builds a base64-encoded binary response with download headers.
func Binary(contentType, filename, size string, body []byte) events.APIGatewayV2HTTPResponse {
	headers := map[string]string{
		"Content-Type":        contentType,
		"Content-Disposition": `attachment; filename="` + filename + `"`,
	}
	if size != "" {
		headers["Content-Length"] = size
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode:      http.StatusOK,
		Headers:         headers,
		Body:            base64.StdEncoding.EncodeToString(body),
		IsBase64Encoded: true,
	}
}
