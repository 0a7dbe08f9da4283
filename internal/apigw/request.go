// Package apigw holds the request parsing, caller identification, and
// response shaping shared by the HTTP Lambda handlers.
package apigw

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by request parsing.
var (
	ErrNoIdentity  = errors.New("no caller identity")
	ErrInvalidBody = errors.New("invalid request body")
)

// internalDomainPrefix identifies calls arriving through the internal
// API Gateway domain, which is reachable only by trusted services.
const internalDomainPrefix = "emails-email-api-internal"

// Caller is the identified requester. Internal callers act on behalf of
// any account; external callers only on their own.
type Caller struct {
	Identity string
	Internal bool
}

// CanAccess reports whether the caller may act on the given account.
func (c Caller) CanAccess(accountID string) bool {
	return c.Internal || c.Identity == accountID
}

// ParseBody returns the decoded request body.
func ParseBody(request events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !request.IsBase64Encoded {
		return []byte(request.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(request.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return decoded, nil
}

// IdentifyCaller extracts the caller from a request. Internal-domain calls
// carry the acting user in the x-user-name header; everything else must
// present a JWT whose username claim names the caller. The gateway
// authorizer has already verified the token, so the claim is read without
// re-verification.
func IdentifyCaller(request events.APIGatewayV2HTTPRequest) (Caller, error) {
	if request.RequestContext.DomainPrefix == internalDomainPrefix {
		if name := header(request, "x-user-name"); name != "" {
			return Caller{Identity: name, Internal: true}, nil
		}
		return Caller{}, fmt.Errorf("%w: internal call without x-user-name", ErrNoIdentity)
	}

	token := strings.TrimPrefix(header(request, "authorization"), "Bearer ")
	if token == "" {
		return Caller{}, ErrNoIdentity
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	username, _ := claims["cognito:username"].(string)
	if username == "" {
		return Caller{}, fmt.Errorf("%w: token carries no username", ErrNoIdentity)
	}
	return Caller{Identity: username}, nil
}

func header(request events.APIGatewayV2HTTPRequest, name string) string {
	if value, ok := request.Headers[name]; ok {
		return value
	}
	// API Gateway lowercases header names, but tests and local tools may
	// not.
	for key, value := range request.Headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
