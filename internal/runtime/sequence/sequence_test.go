package sequence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/compress"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/envelope"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/predicate"
)

func TestStartActivatesFirstStep(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{"n": 1})
	seq.Add("fn-b", map[string]any{"n": 2})

	step, env, err := seq.Start(context.Background(), 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if env == nil {
		t.Fatal("expected an envelope for the first step")
	}
	if step.ARN != "fn-a" {
		t.Fatalf("expected fn-a to activate first, got %s", step.ARN)
	}
	if seq.ActiveStep().ARN != "fn-a" {
		t.Fatal("expected fn-a to be the active step")
	}
}

func TestNextAdvancesThroughPlan(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	seq.Add("fn-b", map[string]any{})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	step, env, err := seq.Next(context.Background(), map[string]any{"ok": true}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if step.ARN != "fn-b" {
		t.Fatalf("expected fn-b to activate next, got %s", step.ARN)
	}
	if env == nil {
		t.Fatal("expected an envelope for the second step")
	}

	final, finalEnv, err := seq.Next(context.Background(), map[string]any{"ok": true}, 0)
	if err != nil {
		t.Fatalf("final next failed: %v", err)
	}
	if final != nil || finalEnv != nil {
		t.Fatal("expected the plan to be exhausted")
	}
	if !seq.Done() {
		t.Fatal("expected the sequence to be done")
	}
}

func TestDynamicReferenceResolvesPriorResponse(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	seq.Add("fn-b", map[string]any{"orderID": map[string]any{"lookup": "fn-a.order.id"}})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, env, err := seq.Next(context.Background(), map[string]any{"order": map[string]any{"id": "o-42"}}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}

	resolved, err := decodeBoxedBody(env)
	if err != nil {
		t.Fatalf("decode boxed body: %v", err)
	}
	if resolved["orderID"] != "o-42" {
		t.Fatalf("expected resolved orderID, got %v", resolved)
	}
}

func TestLegacyColonReferenceResolves(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	seq.Add("fn-b", map[string]any{"orderID": ":fn-a.order.id"})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, env, err := seq.Next(context.Background(), map[string]any{"order": map[string]any{"id": "o-7"}}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}

	resolved, err := decodeBoxedBody(env)
	if err != nil {
		t.Fatalf("decode boxed body: %v", err)
	}
	if resolved["orderID"] != "o-7" {
		t.Fatalf("expected resolved orderID, got %v", resolved)
	}
}

func TestNextLayersResolvedParamsUnderIncomingRequest(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	seq.Add("fn-b", map[string]any{"region": "us-east-1"})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, env, err := seq.Next(context.Background(), map[string]any{"region": "us-west-2", "orderId": "o-9"}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}

	body, err := decodeBoxedBody(env)
	if err != nil {
		t.Fatalf("decode boxed body: %v", err)
	}
	if body["region"] != "us-west-2" {
		t.Fatalf("expected the incoming request to win over the conductor-set static, got %v", body["region"])
	}
	if body["orderId"] != "o-9" {
		t.Fatalf("expected the incoming request's own fields to pass through, got %v", body)
	}
}

func TestOnConditionSkipsFalsyStep(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	expr, err := predicate.Compile(`responses["fn-a"].approved === true`)
	if err != nil {
		t.Fatalf("compile predicate: %v", err)
	}
	seq.OnCondition(expr, "fn-b", map[string]any{})
	seq.Add("fn-c", map[string]any{})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	step, _, err := seq.Next(context.Background(), map[string]any{"approved": false}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if step.ARN != "fn-c" {
		t.Fatalf("expected fn-b to be skipped and fn-c activated, got %s", step.ARN)
	}

	steps := seq.Steps()
	if steps[1].Status != StatusSkipped {
		t.Fatalf("expected fn-b to be skipped, got %s", steps[1].Status)
	}
}

func TestOnConditionActivatesTruthyStep(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})
	expr, err := predicate.Compile(`responses["fn-a"].approved === true`)
	if err != nil {
		t.Fatalf("compile predicate: %v", err)
	}
	seq.OnCondition(expr, "fn-b", map[string]any{})

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	step, _, err := seq.Next(context.Background(), map[string]any{"approved": true}, 0)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if step.ARN != "fn-b" {
		t.Fatalf("expected fn-b to activate, got %v", step)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{"x": 1})
	if err := seq.OnError("fn-error-handler", map[string]any{}, nil); err != nil {
		t.Fatalf("on-error failed: %v", err)
	}

	if _, _, err := seq.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := seq.FinishStep(seq.ActiveStep(), map[string]any{"done": true}); err != nil {
		t.Fatalf("finish step failed: %v", err)
	}

	wire := seq.Serialize()
	restored, err := Deserialize(&wire)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if len(restored.Steps()) != 1 {
		t.Fatalf("expected 1 step, got %d", len(restored.Steps()))
	}
	if restored.Steps()[0].Status != StatusCompleted {
		t.Fatalf("expected completed status to survive, got %s", restored.Steps()[0].Status)
	}
	if restored.Steps()[0].ErrorHandler == nil || restored.Steps()[0].ErrorHandler.ForwardARN != "fn-error-handler" {
		t.Fatal("expected error handler to survive serialization")
	}
}

func TestOnErrorRequiresAPriorStep(t *testing.T) {
	seq := New()
	if err := seq.OnError("fn-x", nil, nil); err == nil {
		t.Fatal("expected an error when no step has been added yet")
	}
}

func TestIngestStepsRejectsWhenStepsAlreadyPresent(t *testing.T) {
	seq := New()
	seq.Add("fn-a", map[string]any{})

	incoming := newStep("fn-b", map[string]any{}, "task")
	if err := seq.IngestSteps(context.Background(), map[string]any{}, []*SequenceStep{incoming}); err == nil {
		t.Fatal("expected ingest to reject a sequence that already has steps")
	}
}

func TestIngestStepsReplacesAndActivatesFirstStep(t *testing.T) {
	seq := New()
	first := newStep("fn-a", map[string]any{"region": "us-east-1"}, "task")
	second := newStep("fn-b", map[string]any{}, "task")
	currentRequest := map[string]any{"region": "us-west-2", "orderId": "o-1"}

	if err := seq.IngestSteps(context.Background(), currentRequest, []*SequenceStep{first, second}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	active := seq.ActiveStep()
	if active == nil || active.ARN != "fn-a" {
		t.Fatalf("expected fn-a to become active, got %v", active)
	}
	if active.Params["region"] != "us-west-2" {
		t.Fatalf("expected incoming request to win on collision, got %v", active.Params["region"])
	}
	if active.Params["orderId"] != "o-1" {
		t.Fatalf("expected incoming request fields merged into the active step's params, got %v", active.Params)
	}
	if len(seq.Steps()) != 2 {
		t.Fatalf("expected the ingested steps to replace the plan, got %d steps", len(seq.Steps()))
	}
}

func decodeBoxedBody(env *envelope.OrchestratedEnvelope) (map[string]any, error) {
	raw, err := compress.Decompress(env.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
