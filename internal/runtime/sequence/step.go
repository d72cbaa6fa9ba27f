// Package sequence implements the ordered plan of remaining function
// invocations carried inside an orchestrated envelope, its
// dynamic-reference parameter resolution, and the
// assigned/active/completed/skipped step lifecycle.
package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/envelope"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/predicate"
)

// Status is a SequenceStep's position in the assigned -> active ->
// (completed | skipped) lifecycle.
type Status string

const (
	StatusAssigned Status = "assigned"
	StatusActive   Status = "active"
	StatusCompleted Status = "completed"
	StatusSkipped  Status = "skipped"
)

// ErrorHandler is a step's conductor-level error policy, consulted last in
// the error cascade: either a forwarding target or an inline callback
// expression evaluated against the failing error.
type ErrorHandler struct {
	ForwardARN    string
	ForwardParams map[string]any
	Callback      *predicate.Expr
}

// SequenceStep is one planned invocation.
type SequenceStep struct {
	ARN          string
	Params       map[string]any
	Type         string
	Status       Status
	Predicate    *predicate.Expr
	ErrorHandler *ErrorHandler
}

func newStep(arn string, params map[string]any, stepType string) *SequenceStep {
	if params == nil {
		params = map[string]any{}
	}
	return &SequenceStep{ARN: arn, Params: params, Type: stepType, Status: StatusAssigned}
}

// dynamicRefKey is the wire property name used to mark a parameter value as
// a lookup into a prior step's response, e.g. `{"lookup":"fn-a.order.id"}`.
const dynamicRefKey = "lookup"

// resolveParams resolves every dynamic reference in params against the
// responses collected so far, returning a new map safe to hand to the next
// invocation. Legacy string-form references (a leading ":") are also
// recognized, matching the shorthand the source ecosystem's handlers used.
func resolveParams(params map[string]any, responses map[string]json.RawMessage) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		rv, err := resolveValue(value, responses)
		if err != nil {
			return nil, fmt.Errorf("sequence: resolve param %q: %w", key, err)
		}
		resolved[key] = rv
	}
	return resolved, nil
}

func resolveValue(value any, responses map[string]json.RawMessage) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if lookup, ok := v[dynamicRefKey].(string); ok && len(v) == 1 {
			return lookupResponse(lookup, responses)
		}
		resolved := make(map[string]any, len(v))
		for k, inner := range v {
			rv, err := resolveValue(inner, responses)
			if err != nil {
				return nil, err
			}
			resolved[k] = rv
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(v))
		for i, inner := range v {
			rv, err := resolveValue(inner, responses)
			if err != nil {
				return nil, err
			}
			resolved[i] = rv
		}
		return resolved, nil
	case string:
		if strings.HasPrefix(v, ":") {
			return lookupResponse(strings.TrimPrefix(v, ":"), responses)
		}
		return v, nil
	default:
		return v, nil
	}
}

// lookupResponse resolves "stepId.path.into.response" against the
// responses collected so far. The path supports dot-separated object keys
// and bare numeric array indices.
func lookupResponse(lookup string, responses map[string]json.RawMessage) (any, error) {
	parts := strings.Split(lookup, ".")
	if len(parts) == 0 {
		return nil, fmt.Errorf("sequence: empty lookup reference")
	}
	stepID := parts[0]
	raw, ok := responses[stepID]
	if !ok {
		return nil, fmt.Errorf("sequence: no response recorded for step %q", stepID)
	}

	var current any
	if err := jsoncodec.Unmarshal(raw, &current); err != nil {
		return nil, fmt.Errorf("sequence: decode response for step %q: %w", stepID, err)
	}

	for _, segment := range parts[1:] {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("sequence: lookup %q: no key %q", lookup, segment)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("sequence: lookup %q: invalid array index %q", lookup, segment)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("sequence: lookup %q: cannot descend into scalar at %q", lookup, segment)
		}
	}
	return current, nil
}

// toWire converts a step to its envelope wire shape, including the source
// text of its predicate/callback rather than a compiled form.
func (s *SequenceStep) toWire() envelope.StepWire {
	wire := envelope.StepWire{
		ARN:    s.ARN,
		Params: s.Params,
		Type:   s.Type,
		Status: string(s.Status),
	}
	if s.Predicate != nil {
		wire.Predicate = s.Predicate.Source()
	}
	if s.ErrorHandler != nil {
		ehWire := &envelope.ErrorHandlerWire{
			ForwardARN:    s.ErrorHandler.ForwardARN,
			ForwardParams: s.ErrorHandler.ForwardParams,
		}
		if s.ErrorHandler.Callback != nil {
			ehWire.CallbackSource = s.ErrorHandler.Callback.Source()
		}
		wire.ErrorHandler = ehWire
	}
	return wire
}

func stepFromWire(wire envelope.StepWire) (*SequenceStep, error) {
	step := &SequenceStep{
		ARN:    wire.ARN,
		Params: wire.Params,
		Type:   wire.Type,
		Status: Status(wire.Status),
	}
	if step.Params == nil {
		step.Params = map[string]any{}
	}
	if wire.Predicate != "" {
		expr, err := predicate.Compile(wire.Predicate)
		if err != nil {
			return nil, fmt.Errorf("sequence: compile step predicate for %q: %w", wire.ARN, err)
		}
		step.Predicate = expr
	}
	if wire.ErrorHandler != nil {
		eh := &ErrorHandler{
			ForwardARN:    wire.ErrorHandler.ForwardARN,
			ForwardParams: wire.ErrorHandler.ForwardParams,
		}
		if wire.ErrorHandler.CallbackSource != "" {
			expr, err := predicate.Compile(wire.ErrorHandler.CallbackSource)
			if err != nil {
				return nil, fmt.Errorf("sequence: compile error handler callback for %q: %w", wire.ARN, err)
			}
			eh.Callback = expr
		}
		step.ErrorHandler = eh
	}
	return step, nil
}

// evalPredicate evaluates a step's activation predicate against the
// responses collected so far. A step with no predicate is always active.
func (s *SequenceStep) evalPredicate(ctx context.Context, responses map[string]json.RawMessage) (bool, error) {
	if s.Predicate == nil {
		return true, nil
	}
	decoded := make(map[string]any, len(responses))
	for k, raw := range responses {
		var v any
		if err := jsoncodec.Unmarshal(raw, &v); err != nil {
			return false, fmt.Errorf("sequence: decode response %q for predicate: %w", k, err)
		}
		decoded[k] = v
	}
	return s.Predicate.EvalBool(ctx, map[string]any{"responses": decoded})
}
