package gatewayevent

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestCustomClaimsFromStringField(t *testing.T) {
	req := &events.APIGatewayProxyRequest{}
	req.RequestContext.Authorizer = map[string]any{
		"customClaims": `{"userId":"u-1"}`,
	}

	claims, err := CustomClaims(req)
	if err != nil {
		t.Fatalf("custom claims failed: %v", err)
	}
	if claims["userId"] != "u-1" {
		t.Fatalf("expected decoded userId, got %v", claims)
	}
}

func TestCustomClaimsDefaultsToEmptyMapping(t *testing.T) {
	req := &events.APIGatewayProxyRequest{}

	claims, err := CustomClaims(req)
	if err != nil {
		t.Fatalf("custom claims failed: %v", err)
	}
	if claims == nil || len(claims) != 0 {
		t.Fatalf("expected empty mapping, got %v", claims)
	}
}

func TestCustomClaimsFromNativeMap(t *testing.T) {
	req := &events.APIGatewayProxyRequest{}
	req.RequestContext.Authorizer = map[string]any{
		"customClaims": map[string]any{"userId": "u-2"},
	}

	claims, err := CustomClaims(req)
	if err != nil {
		t.Fatalf("custom claims failed: %v", err)
	}
	if claims["userId"] != "u-2" {
		t.Fatalf("expected native map claims, got %v", claims)
	}
}

func TestBearerClaimsDecodesUnverifiedToken(t *testing.T) {
	// header.payload.signature where payload is base64url({"sub":"u-3"})
	token := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1LTMifQ.sig"
	headers := map[string]string{"Authorization": "Bearer " + token}

	claims, err := BearerClaims(headers)
	if err != nil {
		t.Fatalf("bearer claims failed: %v", err)
	}
	if claims["sub"] != "u-3" {
		t.Fatalf("expected decoded sub claim, got %v", claims)
	}
}

func TestBearerClaimsEmptyWithoutHeader(t *testing.T) {
	claims, err := BearerClaims(map[string]string{})
	if err != nil {
		t.Fatalf("bearer claims failed: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("expected empty claims, got %v", claims)
	}
}

func TestNewResponseMergesCORSDefaults(t *testing.T) {
	resp := NewResponse(200, map[string]string{"Content-Type": "application/json"}, `{"ok":true}`)

	if resp.Headers["Access-Control-Allow-Origin"] != "*" {
		t.Fatal("expected CORS origin header to be present")
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Fatal("expected caller header to be merged in")
	}
	if resp.StatusCode != 200 || resp.Body != `{"ok":true}` {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
