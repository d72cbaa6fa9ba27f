// Package wrapper implements the Wrapper Pipeline: the entry/exit state
// machine that turns a user handler into a platform handler, runs the
// error cascade on any failure, and drives sequence continuation,
// new-sequence start, and tracker notification.
//
// The pipeline follows a parse-execute-classify-route shape: Handle walks
// the invocation's unboxing/prep/running-fn/invoke-next/returning-values
// states in one linear function.
package wrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/dbfactory"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/envelope"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/errorsx"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/gatewayevent"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/handlercontext"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/logging"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/matcher"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/metrics"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/secrets"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/sequence"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/tracker"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/tracing"
)

// state names the pipeline's position, recorded locally so a wrapper-level
// failure can name where it happened.
type state string

const (
	stateInitializing            state = "initializing"
	stateUnboxing                state = "unboxing"
	statePrep                    state = "prep"
	stateRunningFn               state = "running-fn"
	stateFnComplete              state = "fn-complete"
	stateInvokeNext              state = "invoke-next"
	stateSequenceStarting        state = "sequence-starting"
	stateSequenceTrackerStarting state = "sequence-tracker-starting"
	stateReturningValues         state = "returning-values"
)

// HandlerFunc is the user-supplied function the pipeline wraps. request is
// the unboxed request body; hctx is the assembled HandlerContext.
type HandlerFunc func(ctx context.Context, request json.RawMessage, hctx *handlercontext.Context) (any, error)

// Invoker is the subset of invoke.Invoker the pipeline depends on,
// narrowed for fakeability in tests (mirrors invoke.LambdaAPI's own
// narrowing one layer down).
type Invoker interface {
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
	InvokeAsync(ctx context.Context, name string, payload []byte) error
}

// Options configures one wrapped handler's pipeline.
type Options struct {
	// FunctionName identifies this handler for ARN expansion, metrics
	// labels, span attributes and tracker status payloads.
	FunctionName string

	Logger  logging.ServiceLogger
	Matcher *matcher.Matcher
	Invoker Invoker

	// SequenceTrackerARN, if non-empty, is notified with a tracker.Status
	// payload after every invocation that is part of a sequence.
	SequenceTrackerARN string

	FetchSecret         secrets.Fetcher
	DBPool              *dbfactory.Pool
	DatabaseURL         string
	CompressionMinBytes int

	Metrics *metrics.Recorder
	Tracer  *tracing.Tracer

	// IncludeStackInResponse controls whether a gateway error response's
	// body carries the originating stack trace.
	IncludeStackInResponse bool
}

// Wrapper holds one handler's pipeline configuration, built once at process
// start and reused across invocations on the same container.
type Wrapper struct {
	opts Options
	fn   HandlerFunc
}

// New builds a Wrapper around fn. Callers typically pass the result to
// lambda.Start.
func New(opts Options, fn HandlerFunc) *Wrapper {
	return &Wrapper{opts: opts, fn: fn}
}

// Handle is the platform entry point: unbox, run the user function, run
// the error cascade on failure, drive continuation/new-sequence/tracker,
// and marshal the response.
func (w *Wrapper) Handle(ctx context.Context, event json.RawMessage) (any, error) {
	st := stateInitializing
	started := time.Now()
	var cascadeErr error
	defer func() {
		if w.opts.Metrics != nil {
			w.opts.Metrics.RecordInvocation(w.opts.FunctionName, time.Since(started), cascadeErr)
		}
	}()

	st = stateUnboxing
	_, span := w.startStage(ctx, tracing.StageUnboxing)
	unboxed, err := envelope.Unbox(event)
	span(err)
	if err != nil {
		cascadeErr = fmt.Errorf("wrapper: %s: %w", st, err)
		return nil, cascadeErr
	}

	seq, err := w.buildSequence(ctx, unboxed)
	if err != nil {
		cascadeErr = fmt.Errorf("wrapper: %s: decode sequence: %w", st, err)
		return nil, cascadeErr
	}

	st = statePrep
	ctx, span = w.startStage(ctx, tracing.StagePrep)
	hctx, gwReq, err := w.prep(ctx, unboxed, seq)
	span(err)
	if err != nil {
		cascadeErr = fmt.Errorf("wrapper: %s: %w", st, err)
		return nil, cascadeErr
	}

	st = stateRunningFn
	ctx, span = w.startStage(ctx, tracing.StageRunningFn)
	result, fnErr := w.fn(ctx, unboxed.Request, hctx)
	span(fnErr)
	st = stateFnComplete

	var surfaced errorsx.Typed
	if fnErr != nil {
		resolved, s, err := w.runCascade(ctx, fnErr, hctx, seq)
		if err != nil {
			cascadeErr = err
			return nil, cascadeErr
		}
		surfaced = s
		if !resolved && surfaced == nil {
			// The cascade always resolves or surfaces; this only guards
			// against a future disposition kind that forgets to do either.
			surfaced = errorsx.NewUnhandledError("unhandled", fnErr)
		}
		result = nil
	}

	if surfaced != nil {
		cascadeErr = surfaced
		return w.finalizeError(gwReq, surfaced)
	}

	st = stateInvokeNext
	if seq.IsSequence() && !seq.Done() {
		ctx, span = w.startStage(ctx, tracing.StageInvokeNext)
		w.continueSequence(ctx, seq, result)
		span(nil)
	}

	st = stateSequenceStarting
	if newSeq := hctx.NewSequence(); newSeq != nil {
		ctx, span = w.startStage(ctx, tracing.StageNewSequence)
		w.startSequence(ctx, newSeq, result)
		span(nil)
	}

	st = stateSequenceTrackerStarting
	if w.opts.SequenceTrackerARN != "" && seq.IsSequence() {
		ctx, span = w.startStage(ctx, tracing.StageTrackerNotify)
		w.notifyTracker(ctx, seq, hctx, result, nil)
		span(nil)
	}

	st = stateReturningValues
	_, span = w.startStage(ctx, tracing.StageReturningValues)
	out, err := w.finalizeSuccess(gwReq, hctx, result)
	span(err)
	if err != nil {
		cascadeErr = fmt.Errorf("wrapper: %s: %w", st, err)
	}
	return out, err
}

func (w *Wrapper) startStage(ctx context.Context, stage tracing.Stage) (context.Context, func(error)) {
	if w.opts.Tracer == nil {
		return ctx, func(error) {}
	}
	return w.opts.Tracer.StartStage(ctx, stage, w.opts.FunctionName, correlationIDFromContext(ctx))
}

func correlationIDFromContext(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc != nil {
		return lc.AwsRequestID
	}
	return ""
}

func correlationIDOf(hctx *handlercontext.Context) string {
	if v, ok := hctx.Headers["X-Correlation-Id"]; ok && v != "" {
		return v
	}
	if v, ok := hctx.Headers["x-correlation-id"]; ok && v != "" {
		return v
	}
	return hctx.AWS.AWSRequestID
}

// buildSequence reconstructs the active Sequence for unboxed (spec
// §4.1/§4.2). An orchestrated continuation is rebuilt with
// sequence.Deserialize, preserving its active/completed step state and
// recorded responses. A bare event carrying an inline `_sequence`
// property is a freshly declared plan that has never been boxed, so its
// steps are routed through IngestSteps instead, merging the new active
// step's conductor-set params with the bare event's own (already
// `_sequence`-stripped) body.
func (w *Wrapper) buildSequence(ctx context.Context, unboxed *envelope.UnboxResult) (*sequence.Sequence, error) {
	if unboxed.Kind != envelope.KindBare || unboxed.Sequence == nil || len(unboxed.Sequence.Steps) == 0 {
		return sequence.Deserialize(unboxed.Sequence)
	}

	decoded, err := sequence.Deserialize(unboxed.Sequence)
	if err != nil {
		return nil, err
	}

	var currentRequest map[string]any
	_ = jsoncodec.Unmarshal(unboxed.Request, &currentRequest)

	seq := sequence.New()
	if err := seq.IngestSteps(ctx, currentRequest, decoded.Steps()); err != nil {
		return nil, err
	}
	return seq, nil
}

// prep builds the HandlerContext: parses any gateway-proxy metadata,
// extracts custom claims, and binds the logger to the correlation id.
// For each known secret header present, the bound logger carries a
// "header.<name>" field holding a redaction marker; the logger does not
// mask secret values that are passed to it later.
func (w *Wrapper) prep(ctx context.Context, unboxed *envelope.UnboxResult, seq *sequence.Sequence) (*handlercontext.Context, *events.APIGatewayProxyRequest, error) {
	var gwReq *events.APIGatewayProxyRequest
	claims := map[string]any{}
	query := map[string]string{}

	if unboxed.Kind == envelope.KindGatewayProxy {
		req, err := gatewayevent.Parse(unboxed.GatewayMeta)
		if err != nil {
			return nil, nil, fmt.Errorf("parse gateway event: %w", err)
		}
		gwReq = req
		c, err := gatewayevent.CustomClaims(req)
		if err != nil {
			return nil, nil, fmt.Errorf("extract custom claims: %w", err)
		}
		claims = c
		if req.QueryStringParameters != nil {
			query = req.QueryStringParameters
		}
	}

	awsInfo := handlercontext.AWSInfo{FunctionName: w.opts.FunctionName}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc != nil {
		awsInfo.AWSRequestID = lc.AwsRequestID
	}
	if deadline, ok := ctx.Deadline(); ok {
		awsInfo.RemainingTime = func() time.Duration { return time.Until(deadline) }
	} else {
		awsInfo.RemainingTime = func() time.Duration { return 0 }
	}

	var dbFactory dbfactory.Factory
	if w.opts.DBPool != nil && w.opts.DatabaseURL != "" {
		dbFactory = w.opts.DBPool.Factory(w.opts.DatabaseURL)
	}

	correlationID := unboxed.Headers["X-Correlation-Id"]
	if correlationID == "" {
		correlationID = awsInfo.AWSRequestID
	}

	hctx := handlercontext.New(handlercontext.Options{
		Logger:      w.scopedLogger(correlationID, unboxed.Headers),
		AWS:         awsInfo,
		Sequence:    seq,
		Gateway:     gwReq,
		Headers:     unboxed.Headers,
		Query:       query,
		Claims:      claims,
		FetchSecret: w.opts.FetchSecret,
		DB:          dbFactory,
		Invoke:      w.invokeNext,
		Matcher:     w.opts.Matcher,
	})
	return hctx, gwReq, nil
}

// secretHeaderNames lists the headers whose presence is recorded on the
// bound logger as a redaction marker instead of their value.
var secretHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
}

func (w *Wrapper) scopedLogger(correlationID string, headers map[string]string) logging.ServiceLogger {
	if w.opts.Logger == nil {
		return nil
	}
	fields := logging.LogFields{"correlationId": correlationID, "functionName": w.opts.FunctionName}
	for k := range headers {
		if lower := lowerASCII(k); secretHeaderNames[lower] {
			fields["header."+lower] = "***REDACTED***"
		}
	}
	return w.opts.Logger.With(fields)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (w *Wrapper) invokeNext(ctx context.Context, name string, payload []byte) ([]byte, error) {
	if w.opts.Invoker == nil {
		return nil, fmt.Errorf("wrapper: no invoker configured")
	}
	return w.opts.Invoker.Invoke(ctx, name, payload)
}

// continueSequence finishes the active step with result, advances the
// plan, and fires the next invocation. Failures are logged and
// swallowed.
func (w *Wrapper) continueSequence(ctx context.Context, seq *sequence.Sequence, result any) {
	step, env, err := seq.Next(ctx, result, w.opts.CompressionMinBytes)
	if err != nil {
		w.logError("advance sequence", err)
		return
	}
	if step == nil || env == nil {
		return
	}
	w.invokeEnvelope(ctx, step.ARN, env)
}

// startSequence starts a handler-registered sequence with the user's
// return value as seed input, invoking its first step directly with that
// value as the envelope body rather than the step's own configured (and,
// for a brand-new plan, unresolvable) params.
func (w *Wrapper) startSequence(ctx context.Context, seq *sequence.Sequence, seed any) {
	if !seq.IsSequence() {
		return
	}
	step, _, err := seq.Start(ctx, w.opts.CompressionMinBytes)
	if err != nil {
		w.logError("start new sequence", err)
		return
	}
	if step == nil {
		return
	}
	body, err := jsoncodec.Marshal(seed)
	if err != nil {
		w.logError("marshal new-sequence seed", err)
		return
	}
	env, err := envelope.Box(body, seq.Serialize(), map[string]string{}, w.opts.CompressionMinBytes)
	if err != nil {
		w.logError("box new-sequence envelope", err)
		return
	}
	w.invokeEnvelope(ctx, step.ARN, env)
}

func (w *Wrapper) invokeEnvelope(ctx context.Context, arn string, env *envelope.OrchestratedEnvelope) {
	if w.opts.Invoker == nil {
		return
	}
	payload, err := jsoncodec.Marshal(env)
	if err != nil {
		w.logError("marshal envelope for invocation", err)
		return
	}
	if _, err := w.opts.Invoker.Invoke(ctx, arn, payload); err != nil {
		w.logError(fmt.Sprintf("invoke %q", arn), err)
	}
}

// notifyTracker sends a tracker.Status update for the active sequence.
// fnErr is non-nil only when called from a future error-path extension;
// the pipeline's happy path always passes nil here and lets seq.Done()
// decide running vs success.
func (w *Wrapper) notifyTracker(ctx context.Context, seq *sequence.Sequence, hctx *handlercontext.Context, result any, fnErr errorsx.Typed) {
	if w.opts.Invoker == nil {
		return
	}

	status := tracker.Status{
		CorrelationID: correlationIDOf(hctx),
		Total:         len(seq.Steps()),
		Current:       sequenceProgress(seq),
		CurrentFn:     w.opts.FunctionName,
		Status:        tracker.StatusRunning,
	}
	if len(seq.Steps()) > 0 {
		status.OriginFn = seq.Steps()[0].ARN
	}
	switch {
	case fnErr != nil:
		status.Status = tracker.StatusError
		status.Error = errorsx.ToGatewayBody(fnErr, false)
	case seq.Done():
		status.Status = tracker.StatusSuccess
		status.Data = result
	}

	payload, err := jsoncodec.Marshal(tracker.Request{Status: status})
	if err != nil {
		w.logError("marshal tracker notification", err)
		return
	}
	if err := w.opts.Invoker.InvokeAsync(ctx, w.opts.SequenceTrackerARN, payload); err != nil {
		w.logError("notify tracker", err)
	}
}

func sequenceProgress(seq *sequence.Sequence) int {
	completed := 0
	for _, step := range seq.Steps() {
		if step.Status == sequence.StatusCompleted || step.Status == sequence.StatusSkipped {
			completed++
		}
	}
	total := len(seq.Steps())
	if completed >= total {
		return total
	}
	return completed + 1
}

func (w *Wrapper) logError(action string, err error) {
	if w.opts.Logger == nil {
		return
	}
	w.opts.Logger.Error("wrapper: "+action, err, nil)
}

// finalizeSuccess builds the final gateway response on the success path,
// no-op for non-gateway invocations.
func (w *Wrapper) finalizeSuccess(gwReq *events.APIGatewayProxyRequest, hctx *handlercontext.Context, result any) (any, error) {
	if gwReq == nil {
		return result, nil
	}

	statusCode := hctx.StatusCode()
	if statusCode == 0 {
		if result != nil {
			statusCode = http.StatusOK
		} else {
			statusCode = http.StatusNoContent
		}
	}

	body, err := bodyToString(result)
	if err != nil {
		return nil, fmt.Errorf("marshal response body: %w", err)
	}

	headers := hctx.ResponseHeaders()
	if headers == nil {
		headers = map[string]string{}
	}
	ct := hctx.ContentType()
	if ct == "" && body != "" {
		ct = "application/json"
	}
	if ct != "" {
		headers["Content-Type"] = ct
	}

	return gatewayevent.NewResponse(statusCode, headers, body), nil
}

// finalizeError builds the final gateway error response, or returns the
// typed error unchanged for the caller to throw otherwise.
func (w *Wrapper) finalizeError(gwReq *events.APIGatewayProxyRequest, typed errorsx.Typed) (any, error) {
	if gwReq == nil {
		return nil, typed
	}

	body := errorsx.ToGatewayBody(typed, w.opts.IncludeStackInResponse)
	encoded, err := jsoncodec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wrapper: marshal gateway error body: %w", err)
	}
	return gatewayevent.NewResponse(typed.HTTPStatus(), nil, string(encoded)), nil
}

func bodyToString(result any) (string, error) {
	if result == nil {
		return "", nil
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	encoded, err := jsoncodec.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
