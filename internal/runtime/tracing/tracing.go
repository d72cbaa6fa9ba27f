// Package tracing wraps the Wrapper Pipeline's named states
// (unboxing/prep/running-fn/invoke-next/tracker-notify/returning-values)
// in OpenTelemetry spans, one per stage per invocation, with a
// per-stage tracer middleware over the pipeline's own state names.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/robinsondotnet/aws-orchestrate"

// Stage names the Wrapper Pipeline's states, used as both the span name
// and metrics-adjacent labeling.
type Stage string

const (
	StageUnboxing        Stage = "unboxing"
	StagePrep            Stage = "prep"
	StageRunningFn       Stage = "running-fn"
	StageInvokeNext      Stage = "invoke-next"
	StageNewSequence     Stage = "new-sequence"
	StageTrackerNotify   Stage = "tracker-notify"
	StageReturningValues Stage = "returning-values"
)

// Tracer starts one span per pipeline stage, tagging each with the
// function name and correlation id so a trace can be filtered down to one
// invocation or one chain.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer drawing from the global OTel TracerProvider
// (wired by the process's OTel SDK setup, outside this package's
// concern).
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartStage opens a span for stage, tagged with functionName and
// correlationID. Callers must call the returned end func (typically via
// defer) when the stage completes.
func (t *Tracer) StartStage(ctx context.Context, stage Stage, functionName, correlationID string) (context.Context, func(err error)) {
	spanCtx, span := t.tracer.Start(ctx, string(stage), trace.WithAttributes(
		attribute.String("aws_orchestrate.function_name", functionName),
		attribute.String("aws_orchestrate.correlation_id", correlationID),
	))
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
