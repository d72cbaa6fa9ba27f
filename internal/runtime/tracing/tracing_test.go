package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestStartStageReturnsContextCarryingSpan(t *testing.T) {
	tracer := New()
	ctx, end := tracer.StartStage(context.Background(), StageRunningFn, "my-handler", "c-1")
	defer end(nil)

	span := trace.SpanFromContext(ctx)
	if span == nil {
		t.Fatal("expected the returned context to carry a span")
	}
}

func TestStartStageEndRecordsErrorWithoutPanicking(t *testing.T) {
	tracer := New()
	_, end := tracer.StartStage(context.Background(), StageRunningFn, "my-handler", "c-1")
	end(errors.New("boom"))
}
