package envelope

import (
	"encoding/json"
	"testing"
)

func TestUnboxBareEventWithoutSequence(t *testing.T) {
	event := []byte(`{"name":"widget"}`)

	result, err := Unbox(event)
	if err != nil {
		t.Fatalf("unbox failed: %v", err)
	}
	if result.Kind != KindBare {
		t.Fatalf("expected KindBare, got %s", result.Kind)
	}
	if result.Sequence == nil || result.Sequence.IsSequence {
		t.Fatal("expected an empty, non-sequence sentinel")
	}
}

func TestUnboxBareEventStripsSequenceProperty(t *testing.T) {
	event := []byte(`{"name":"widget","_sequence":{"isSequence":true,"steps":[],"responses":{}}}`)

	result, err := Unbox(event)
	if err != nil {
		t.Fatalf("unbox failed: %v", err)
	}
	if result.Kind != KindBare {
		t.Fatalf("expected KindBare, got %s", result.Kind)
	}
	if !result.Sequence.IsSequence {
		t.Fatal("expected the embedded sequence to be recognized")
	}

	var stripped map[string]any
	if err := json.Unmarshal(result.Request, &stripped); err != nil {
		t.Fatalf("request is not valid JSON: %v", err)
	}
	if _, present := stripped["_sequence"]; present {
		t.Fatal("expected _sequence to be stripped from the request")
	}
	if stripped["name"] != "widget" {
		t.Fatalf("expected other fields to survive stripping, got %v", stripped)
	}
}

func TestUnboxGatewayProxyEvent(t *testing.T) {
	event := []byte(`{
		"httpMethod": "POST",
		"headers": {"Authorization": "Bearer xyz"},
		"requestContext": {"requestId": "abc"},
		"body": "{\"name\":\"widget\"}"
	}`)

	result, err := Unbox(event)
	if err != nil {
		t.Fatalf("unbox failed: %v", err)
	}
	if result.Kind != KindGatewayProxy {
		t.Fatalf("expected KindGatewayProxy, got %s", result.Kind)
	}
	if result.Headers["Authorization"] != "Bearer xyz" {
		t.Fatalf("expected headers to carry through, got %v", result.Headers)
	}
	if result.GatewayMeta == nil {
		t.Fatal("expected gateway metadata to be preserved")
	}

	var body map[string]any
	if err := json.Unmarshal(result.Request, &body); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	if body["name"] != "widget" {
		t.Fatalf("expected decoded body, got %v", body)
	}
}

func TestBoxUnboxRoundTrip(t *testing.T) {
	seq := SequenceWire{
		IsSequence: true,
		Steps: []StepWire{
			{ARN: "fn-a", Status: "completed"},
			{ARN: "fn-b", Status: "assigned"},
		},
		Responses: map[string]json.RawMessage{
			"fn-a": json.RawMessage(`{"ok":true}`),
		},
	}
	headers := map[string]string{"x-correlation-id": "c-1"}
	body := json.RawMessage(`{"payload":"value"}`)

	boxed, err := Box(body, seq, headers, 0)
	if err != nil {
		t.Fatalf("box failed: %v", err)
	}
	if boxed.Type != WireType {
		t.Fatalf("expected wire type %q, got %q", WireType, boxed.Type)
	}

	encoded, err := json.Marshal(boxed)
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	result, err := Unbox(encoded)
	if err != nil {
		t.Fatalf("unbox failed: %v", err)
	}
	if result.Kind != KindOrchestrated {
		t.Fatalf("expected KindOrchestrated, got %s", result.Kind)
	}
	if !result.Sequence.IsSequence || len(result.Sequence.Steps) != 2 {
		t.Fatalf("expected sequence to round-trip, got %+v", result.Sequence)
	}
	if result.Headers["x-correlation-id"] != "c-1" {
		t.Fatalf("expected headers to round-trip, got %v", result.Headers)
	}

	var decodedBody map[string]any
	if err := json.Unmarshal(result.Request, &decodedBody); err != nil {
		t.Fatalf("decoded body is not valid JSON: %v", err)
	}
	if decodedBody["payload"] != "value" {
		t.Fatalf("expected body to round-trip, got %v", decodedBody)
	}
}

func TestBoxCompressesLargePayloads(t *testing.T) {
	large := make([]byte, 2048)
	for i := range large {
		large[i] = 'a'
	}
	body, _ := json.Marshal(map[string]string{"blob": string(large)})

	boxed, err := Box(body, SequenceWire{Responses: map[string]json.RawMessage{}}, map[string]string{}, 64)
	if err != nil {
		t.Fatalf("box failed: %v", err)
	}
	if len(boxed.Body) >= len(body) {
		t.Fatal("expected large body to be compressed smaller than the original")
	}
}
