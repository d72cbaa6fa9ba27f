package wrapper

import (
	"context"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/errorsx"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/handlercontext"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/sequence"
)

// runCascade implements the error cascade. It returns
// resolved=true when the error was absorbed (the handler's invocation is
// treated as a success with no result), or a surfaced typed error
// otherwise. When the cascade itself fails, that failure is wrapped as
// RethrowError (if it is already a typed error) or ErrorWithinError and
// returned as surfaced; err is always nil.
func (w *Wrapper) runCascade(ctx context.Context, cause error, hctx *handlercontext.Context, seq *sequence.Sequence) (resolved bool, surfaced errorsx.Typed, err error) {
	surfaced, resolved, cascadeErr := w.evaluateCascade(ctx, cause, hctx, seq)
	if cascadeErr != nil {
		if already, ok := errorsx.AsTyped(cascadeErr); ok {
			return false, errorsx.NewRethrowError(already), nil
		}
		return false, errorsx.NewErrorWithinError(cascadeErr, cause), nil
	}
	return resolved, surfaced, nil
}

func (w *Wrapper) evaluateCascade(ctx context.Context, cause error, hctx *handlercontext.Context, seq *sequence.Sequence) (errorsx.Typed, bool, error) {
	// Step 1: ServerlessError passes through unchanged aside from
	// enrichment, bypassing the matcher and the step-level error policy.
	if se, ok := cause.(*errorsx.ServerlessError); ok {
		enriched := se.Enrich(w.opts.FunctionName, hctx.AWS.AWSRequestID, correlationIDOf(hctx))
		return enriched, false, nil
	}

	// Steps 2-3: the Error Matcher, falling back to its default policy.
	if w.opts.Matcher == nil {
		return errorsx.NewUnhandledError("unhandled", cause), false, nil
	}
	outcome, err := w.opts.Matcher.Match(ctx, cause)
	if err != nil {
		return nil, false, err
	}

	resolved := outcome.Resolved
	surfaced := outcome.Surfaced

	// Step 4: the active sequence step's conductor-level error policy, if
	// any, gets the final say over a still-surfaced error.
	if !resolved && surfaced != nil {
		if w.consultStepErrorPolicy(ctx, seq, cause) {
			resolved = true
			surfaced = nil
		}
	}
	return surfaced, resolved, nil
}

// consultStepErrorPolicy runs a step's conductor-level error policy: a
// locally-run callback whose truthy result resolves the error, or a
// forward to the step's configured ARN (fire-and-forget, also treated as
// resolved).
func (w *Wrapper) consultStepErrorPolicy(ctx context.Context, seq *sequence.Sequence, cause error) bool {
	step := seq.ActiveStep()
	if step == nil || step.ErrorHandler == nil {
		return false
	}
	eh := step.ErrorHandler

	if eh.Callback != nil {
		bindings := map[string]any{"error": map[string]any{"message": cause.Error()}}
		ok, err := eh.Callback.EvalBool(ctx, bindings)
		if err == nil && ok {
			return true
		}
	}

	if eh.ForwardARN != "" && w.opts.Invoker != nil {
		payload, err := jsoncodec.Marshal(map[string]any{
			"errorMessage": cause.Error(),
			"params":       eh.ForwardParams,
		})
		if err == nil {
			// Fire-and-forget: failures here do not change the outcome.
			_ = w.opts.Invoker.InvokeAsync(ctx, eh.ForwardARN, payload)
		}
		return true
	}

	return false
}
