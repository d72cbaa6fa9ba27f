package handlercontext

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/logging"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/matcher"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/sequence"
)

func newTestLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.Default())
}

func TestNewDefaultsNilMapsToEmpty(t *testing.T) {
	c := New(Options{})

	if c.Headers == nil || c.Query == nil || c.Claims == nil {
		t.Fatal("expected New to default nil maps to empty maps")
	}
	if len(c.Headers) != 0 || len(c.Query) != 0 || len(c.Claims) != 0 {
		t.Fatal("expected defaulted maps to be empty")
	}
}

func TestNewPreservesSuppliedFields(t *testing.T) {
	seq := sequence.New()
	gw := &events.APIGatewayProxyRequest{HTTPMethod: "POST"}
	m := matcher.New("UNHANDLED", nil)
	logger := newTestLogger()

	c := New(Options{
		Logger: logger,
		AWS: AWSInfo{
			FunctionName:  "my-fn",
			AWSRequestID:  "req-1",
			RemainingTime: func() time.Duration { return 5 * time.Second },
		},
		Sequence: seq,
		Gateway:  gw,
		Headers:  map[string]string{"X-Trace": "abc"},
		Query:    map[string]string{"q": "1"},
		Claims:   map[string]any{"sub": "u-1"},
		Matcher:  m,
	})

	if c.AWS.FunctionName != "my-fn" || c.AWS.AWSRequestID != "req-1" {
		t.Fatalf("unexpected AWS info: %+v", c.AWS)
	}
	if c.AWS.RemainingTime() != 5*time.Second {
		t.Fatal("expected RemainingTime closure to be preserved")
	}
	if c.Sequence != seq || c.Gateway != gw || c.Matcher != m || c.Logger != logger {
		t.Fatal("expected reference fields to be preserved verbatim")
	}
	if c.Headers["X-Trace"] != "abc" || c.Query["q"] != "1" || c.Claims["sub"] != "u-1" {
		t.Fatal("expected supplied map contents to be preserved")
	}
}

func TestRegisterSequenceRoundTrips(t *testing.T) {
	c := New(Options{})
	if c.NewSequence() != nil {
		t.Fatal("expected no registered sequence before RegisterSequence")
	}

	seq := sequence.New()
	c.RegisterSequence(seq)
	if c.NewSequence() != seq {
		t.Fatal("expected NewSequence to return the registered sequence")
	}
}

func TestStatusCodeDefaultsToZero(t *testing.T) {
	c := New(Options{})
	if c.StatusCode() != 0 {
		t.Fatalf("expected default status code 0, got %d", c.StatusCode())
	}

	c.SetStatusCode(201)
	if c.StatusCode() != 201 {
		t.Fatalf("expected status code 201, got %d", c.StatusCode())
	}
}

func TestContentTypeDefaultsToEmpty(t *testing.T) {
	c := New(Options{})
	if c.ContentType() != "" {
		t.Fatalf("expected default content type \"\", got %q", c.ContentType())
	}

	c.SetContentType("application/json")
	if c.ContentType() != "application/json" {
		t.Fatalf("expected application/json, got %q", c.ContentType())
	}
}

func TestAppendHeaderAccumulates(t *testing.T) {
	c := New(Options{})
	c.AppendHeader("X-One", "1")
	c.AppendHeader("X-Two", "2")

	headers := c.ResponseHeaders()
	if headers["X-One"] != "1" || headers["X-Two"] != "2" {
		t.Fatalf("expected both appended headers, got %+v", headers)
	}
}

func TestInvokeClosureIsCallable(t *testing.T) {
	called := false
	c := New(Options{
		Invoke: func(ctx context.Context, name string, payload []byte) ([]byte, error) {
			called = true
			return []byte("ok"), nil
		},
	})

	out, err := c.Invoke(context.Background(), "some-fn", []byte("{}"))
	if err != nil || string(out) != "ok" || !called {
		t.Fatalf("expected Invoke closure to run, got out=%q err=%v called=%v", out, err, called)
	}
}
