package sequence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/envelope"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/errors"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/predicate"
)

// Sequence is the ordered plan of remaining invocations plus every
// response collected so far.
type Sequence struct {
	steps     []*SequenceStep
	responses map[string]json.RawMessage
}

// New returns an empty sequence, ready for Add/OnCondition calls.
func New() *Sequence {
	return &Sequence{responses: map[string]json.RawMessage{}}
}

// IsSequence reports whether this plan carries any steps. It mirrors the
// wire-level isSequence flag consulted by the wrapper to decide whether an
// inbound event is orchestrated at all.
func (s *Sequence) IsSequence() bool {
	return len(s.steps) > 0
}

// Add appends an unconditional step to the end of the plan.
func (s *Sequence) Add(arn string, params map[string]any) *SequenceStep {
	step := newStep(arn, params, "task")
	s.steps = append(s.steps, step)
	return step
}

// OnCondition appends a step that is only activated if predicateExpr
// evaluates truthy against the responses map at activation time; a false
// predicate transitions the step directly to skipped.
func (s *Sequence) OnCondition(predicateExpr *predicate.Expr, arn string, params map[string]any) *SequenceStep {
	step := newStep(arn, params, "task")
	step.Predicate = predicateExpr
	s.steps = append(s.steps, step)
	return step
}

// OnError attaches a conductor-level error policy to the most recently
// added step. forwardARN may be empty when callback is supplied, and vice
// versa; supplying both is valid (the forward only runs if the callback
// does not itself resolve the error).
func (s *Sequence) OnError(forwardARN string, forwardParams map[string]any, callback *predicate.Expr) error {
	if len(s.steps) == 0 {
		return errors.ErrNoAssignedStep
	}
	last := s.steps[len(s.steps)-1]
	last.ErrorHandler = &ErrorHandler{
		ForwardARN:    forwardARN,
		ForwardParams: forwardParams,
		Callback:      callback,
	}
	return nil
}

// Responses returns the raw responses recorded so far, keyed by step id.
func (s *Sequence) Responses() map[string]json.RawMessage {
	return s.responses
}

// Steps returns the full ordered plan, including completed and skipped
// steps.
func (s *Sequence) Steps() []*SequenceStep {
	return s.steps
}

// nextAssignable walks forward from the first StatusAssigned step,
// evaluating predicates and skipping any that resolve falsy, until it
// finds a step to activate or runs out of steps.
func (s *Sequence) nextAssignable(ctx context.Context) (*SequenceStep, error) {
	for _, step := range s.steps {
		if step.Status != StatusAssigned {
			continue
		}
		ok, err := step.evalPredicate(ctx, s.responses)
		if err != nil {
			return nil, fmt.Errorf("sequence: evaluate predicate for %q: %w", step.ARN, err)
		}
		if !ok {
			step.Status = StatusSkipped
			continue
		}
		return step, nil
	}
	return nil, nil
}

// Start activates the first eligible step and returns the envelope ready
// for its invocation. It is a no-op producing (nil, nil, nil) when the
// sequence has no steps at all.
func (s *Sequence) Start(ctx context.Context, compressionMinBytes int) (*SequenceStep, *envelope.OrchestratedEnvelope, error) {
	if !s.IsSequence() {
		return nil, nil, nil
	}
	return s.advance(ctx, nil, compressionMinBytes)
}

// Next marks the currently active step completed with the given response,
// then activates the next eligible step (if any) and returns the envelope
// ready for its invocation. A nil envelope with a nil step means the
// sequence is done.
func (s *Sequence) Next(ctx context.Context, response any, compressionMinBytes int) (*SequenceStep, *envelope.OrchestratedEnvelope, error) {
	active := s.ActiveStep()
	if active == nil {
		return nil, nil, errors.ErrNoAssignedStep
	}
	if err := s.FinishStep(active, response); err != nil {
		return nil, nil, err
	}
	return s.advance(ctx, response, compressionMinBytes)
}

// FinishStep records response under the step's ARN and marks it completed.
// It does not advance the plan; callers that want the next envelope should
// call Next instead, which calls this internally.
func (s *Sequence) FinishStep(step *SequenceStep, response any) error {
	encoded, err := jsoncodec.Marshal(response)
	if err != nil {
		return fmt.Errorf("sequence: marshal response for %q: %w", step.ARN, err)
	}
	s.responses[step.ARN] = encoded
	step.Status = StatusCompleted
	return nil
}

// advance promotes the first assignable step to active, resolves its
// dynamic-reference params against the responses collected so far, and
// layers the resolved mapping under request (the raw value just produced
// by the invocation driving this advance, which wins on key collision)
// before boxing the envelope for invocation. request is nil when
// advancing a brand-new sequence that has not run anything yet.
func (s *Sequence) advance(ctx context.Context, request any, compressionMinBytes int) (*SequenceStep, *envelope.OrchestratedEnvelope, error) {
	next, err := s.nextAssignable(ctx)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, nil, nil
	}
	next.Status = StatusActive

	resolvedParams, err := resolveParams(next.Params, s.responses)
	if err != nil {
		return nil, nil, err
	}
	merged, err := layerUnderRequest(resolvedParams, request)
	if err != nil {
		return nil, nil, fmt.Errorf("sequence: layer resolved params under request for %q: %w", next.ARN, err)
	}
	body, err := jsoncodec.Marshal(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("sequence: marshal resolved params for %q: %w", next.ARN, err)
	}

	env, err := envelope.Box(body, s.toWire(), map[string]string{}, compressionMinBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("sequence: box envelope for %q: %w", next.ARN, err)
	}
	return next, env, nil
}

// layerUnderRequest layers the raw incoming request on top of the
// resolved conductor-set params, which form the base (request wins on
// collision). A request that does not itself
// decode to a JSON object (nil, a scalar, an array) has nothing to layer,
// so resolved is returned unchanged.
func layerUnderRequest(resolved map[string]any, request any) (map[string]any, error) {
	if request == nil {
		return resolved, nil
	}
	encoded, err := jsoncodec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var requestMap map[string]any
	if err := jsoncodec.Unmarshal(encoded, &requestMap); err != nil {
		return resolved, nil
	}
	merged := make(map[string]any, len(resolved)+len(requestMap))
	for k, v := range resolved {
		merged[k] = v
	}
	for k, v := range requestMap {
		merged[k] = v
	}
	return merged, nil
}

// ActiveStep returns the currently active step, or nil if none is active.
func (s *Sequence) ActiveStep() *SequenceStep {
	for _, step := range s.steps {
		if step.Status == StatusActive {
			return step
		}
	}
	return nil
}

// Done reports whether every step has reached a terminal state
// (completed or skipped).
func (s *Sequence) Done() bool {
	for _, step := range s.steps {
		if step.Status == StatusAssigned || step.Status == StatusActive {
			return false
		}
	}
	return true
}

// IngestSteps replaces the step list on a freshly-built Sequence with
// steps declared inline on the current event, as happens at unbox time
// for a bare event carrying a `_sequence` property. It fails if this
// sequence already has steps. The new active step's conductor-set params
// are merged with currentRequest, the request this very invocation is
// running against, request winning on key collision (the active step's
// own invocation is this call, so there is no separate envelope to box
// for it).
func (s *Sequence) IngestSteps(ctx context.Context, currentRequest map[string]any, steps []*SequenceStep) error {
	if len(s.steps) > 0 {
		return errors.ErrStepsAlreadyPresent
	}
	s.steps = steps

	active, err := s.nextAssignable(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	active.Status = StatusActive

	merged := make(map[string]any, len(active.Params)+len(currentRequest))
	for k, v := range active.Params {
		merged[k] = v
	}
	for k, v := range currentRequest {
		merged[k] = v
	}
	active.Params = merged
	return nil
}

func (s *Sequence) toWire() envelope.SequenceWire {
	wire := envelope.SequenceWire{
		IsSequence: s.IsSequence(),
		Steps:      make([]envelope.StepWire, len(s.steps)),
		Responses:  s.responses,
	}
	for i, step := range s.steps {
		wire.Steps[i] = step.toWire()
	}
	return wire
}

// Serialize returns the wire shape used inside an orchestrated envelope.
func (s *Sequence) Serialize() envelope.SequenceWire {
	return s.toWire()
}

// Deserialize rebuilds a Sequence from its wire shape, recompiling every
// step's predicate and error-handler callback expression.
func Deserialize(wire *envelope.SequenceWire) (*Sequence, error) {
	if wire == nil {
		return New(), nil
	}
	seq := &Sequence{responses: wire.Responses}
	if seq.responses == nil {
		seq.responses = map[string]json.RawMessage{}
	}
	seq.steps = make([]*SequenceStep, len(wire.Steps))
	for i, stepWire := range wire.Steps {
		step, err := stepFromWire(stepWire)
		if err != nil {
			return nil, err
		}
		seq.steps[i] = step
	}
	return seq, nil
}
