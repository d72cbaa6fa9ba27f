// Package gatewayevent handles the API Gateway proxy integration shapes:
// decoding the inbound proxy request's authorizer claims, building the
// outbound `{statusCode, headers, body}` response, and the standard CORS
// header set attached to every gateway response.
package gatewayevent

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v4"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/metadata"
)

// CORSHeaders are attached to every gateway response regardless of
// success or failure.
func CORSHeaders() metadata.Metadata {
	return metadata.New(
		"Access-Control-Allow-Origin", "*",
		"Access-Control-Allow-Credentials", "true",
	)
}

// Parse decodes the raw gateway-proxy event (the bytes envelope.Unbox
// preserved as GatewayMeta) into its typed proxy-request shape.
func Parse(raw []byte) (*events.APIGatewayProxyRequest, error) {
	var req events.APIGatewayProxyRequest
	if err := jsoncodec.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("gatewayevent: parse proxy request: %w", err)
	}
	return &req, nil
}

// CustomClaims extracts `requestContext.authorizer.customClaims` (spec
// §4.5 step 2), JSON-decoding it if the authorizer delivered it as a
// string (API Gateway Lambda authorizers can only return string-valued
// context fields). Returns an empty, non-nil mapping when absent.
func CustomClaims(req *events.APIGatewayProxyRequest) (map[string]any, error) {
	if req == nil || req.RequestContext.Authorizer == nil {
		return map[string]any{}, nil
	}
	raw, ok := req.RequestContext.Authorizer["customClaims"]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}

	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return map[string]any{}, nil
		}
		var claims map[string]any
		if err := jsoncodec.Unmarshal([]byte(v), &claims); err != nil {
			return nil, fmt.Errorf("gatewayevent: decode customClaims: %w", err)
		}
		return claims, nil
	default:
		return map[string]any{}, nil
	}
}

// BearerClaims decodes the unverified claims of a `Bearer <jwt>`
// Authorization header, for callers that want the raw token claims in
// addition to the authorizer's customClaims. Verification is the
// authorizer's job, already performed upstream of this invocation; this
// is read-only inspection of a token already trusted by the platform.
func BearerClaims(headers map[string]string) (jwt.MapClaims, error) {
	token := bearerToken(headers)
	if token == "" {
		return jwt.MapClaims{}, nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("gatewayevent: parse bearer token: %w", err)
	}
	return claims, nil
}

func bearerToken(headers map[string]string) string {
	for key, value := range headers {
		if equalFoldASCII(key, "authorization") {
			const prefix = "Bearer "
			if len(value) > len(prefix) && equalFoldASCII(value[:len(prefix)], prefix) {
				return value[len(prefix):]
			}
			return ""
		}
	}
	return ""
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Response is the outbound gateway envelope shape.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// NewResponse builds a gateway response, merging CORS defaults under any
// caller-supplied headers (callers win on collision).
func NewResponse(statusCode int, headers map[string]string, body string) Response {
	merged := CORSHeaders().WithAll(metadata.Metadata(headers))
	return Response{StatusCode: statusCode, Headers: merged, Body: body}
}
