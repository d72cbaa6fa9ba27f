package errorsx

import (
	"errors"
	"testing"
)

func TestHandledErrorFields(t *testing.T) {
	cause := errors.New("boom")
	err := NewHandledError("X1", cause).WithIDs("req-1", "corr-1")

	if err.Name() != "aws-orchestrate/X1" {
		t.Fatalf("unexpected name: %s", err.Name())
	}
	if err.ErrorType() != TypeHandled {
		t.Fatalf("unexpected type: %s", err.ErrorType())
	}
	if err.RequestID() != "req-1" || err.CorrelationID() != "corr-1" {
		t.Fatalf("expected ids to be set, got %q %q", err.RequestID(), err.CorrelationID())
	}
	if err.Message() != "boom" {
		t.Fatalf("expected message from cause, got %q", err.Message())
	}
}

func TestServerlessErrorEnrichRewritesClassification(t *testing.T) {
	err := NewServerlessError(403, "nope", "auth")
	enriched := err.Enrich("myHandlerFunction", "1234", "c-123")

	if enriched.Classification != "myHandlerFunction/auth" {
		t.Fatalf("unexpected classification: %s", enriched.Classification)
	}
	if enriched.FunctionName != "myHandlerFunction" {
		t.Fatalf("unexpected function name: %s", enriched.FunctionName)
	}
	if enriched.CorrelationID() != "c-123" || enriched.RequestID() != "1234" {
		t.Fatalf("expected ids propagated, got %q %q", enriched.RequestID(), enriched.CorrelationID())
	}
	if enriched.HTTPStatus() != 403 {
		t.Fatalf("expected http status preserved, got %d", enriched.HTTPStatus())
	}
}

func TestRethrowErrorPreservesOriginal(t *testing.T) {
	original := NewHandledError("X2", errors.New("boom")).WithIDs("req-2", "corr-2")
	rethrown := NewRethrowError(original)

	if rethrown.Code() != original.Code() {
		t.Fatalf("expected code preserved, got %s", rethrown.Code())
	}
	if rethrown.ErrorType() != TypeRethrow {
		t.Fatalf("expected rethrow type, got %s", rethrown.ErrorType())
	}
	if rethrown.RequestID() != "req-2" {
		t.Fatalf("expected request id preserved, got %s", rethrown.RequestID())
	}
}

func TestErrorWithinErrorCarriesBoth(t *testing.T) {
	outer := errors.New("handler blew up")
	inner := errors.New("original cause")
	err := NewErrorWithinError(outer, inner)

	if err.Outer != outer || err.Inner != inner {
		t.Fatal("expected both outer and inner causes preserved")
	}
	if err.ErrorType() != TypeErrorWithinError {
		t.Fatalf("unexpected type: %s", err.ErrorType())
	}
}

func TestCallDepthExceeded(t *testing.T) {
	err := NewCallDepthExceeded(5, 4)
	if err.Depth != 5 || err.Limit != 4 {
		t.Fatal("expected depth/limit preserved")
	}
	if err.HTTPStatus() != 508 {
		t.Fatalf("unexpected http status: %d", err.HTTPStatus())
	}
}

func TestAsTypedRecognizesTaxonomyMembers(t *testing.T) {
	err := NewUnhandledError("DEFAULT", errors.New("boom"))
	typed, ok := AsTyped(err)
	if !ok {
		t.Fatal("expected UnhandledError to satisfy Typed")
	}
	if typed.ErrorType() != TypeUnhandled {
		t.Fatalf("unexpected type: %s", typed.ErrorType())
	}

	_, ok = AsTyped(errors.New("plain"))
	if ok {
		t.Fatal("expected plain error to not satisfy Typed")
	}
}

func TestToGatewayBodyOmitsStackByDefault(t *testing.T) {
	err := NewHandledError("X3", errors.New("boom")).WithIDs("req-3", "corr-3")
	body := ToGatewayBody(err, false)

	if body.Stack != "" {
		t.Fatal("expected stack omitted when includeStack is false")
	}
	if body.CorrelationID != "corr-3" || body.RequestID != "req-3" {
		t.Fatal("expected ids copied into gateway body")
	}

	withStack := ToGatewayBody(err, true)
	if withStack.Stack == "" {
		t.Fatal("expected stack populated when includeStack is true")
	}
}
