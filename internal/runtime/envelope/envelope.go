// Package envelope recognizes the three inbound event shapes (bare,
// orchestrated, gateway-proxy), compresses/decompresses the orchestrated
// wire form, and builds the envelope handed to the next-function invoker.
//
// This package defines the wire-shape types only (SequenceWire, StepWire,
// ...) rather than the behavior-rich Sequence model. Package sequence
// depends on these types to implement Serialize/Deserialize and to build
// envelopes for invocation, keeping the dependency one-directional.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/compress"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
)

// WireType is the type marker on an orchestrated envelope.
const WireType = "orchestrated-message-body"

// Kind identifies which of the three event shapes Unbox recognized.
type Kind string

const (
	KindBare         Kind = "bare"
	KindOrchestrated Kind = "orchestrated"
	KindGatewayProxy Kind = "gateway-proxy"
)

// StepWire is the wire shape of one SequenceStep.
type StepWire struct {
	ARN         string            `json:"arn"`
	Params      map[string]any    `json:"params"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Predicate   string            `json:"predicate,omitempty"`
	ErrorHandler *ErrorHandlerWire `json:"errorHandler,omitempty"`
}

// ErrorHandlerWire is the wire shape of a step's conductor-level error
// policy: either a forward target or an inline callback expression.
type ErrorHandlerWire struct {
	ForwardARN     string         `json:"forwardTo,omitempty"`
	ForwardParams  map[string]any `json:"forwardParams,omitempty"`
	CallbackSource string         `json:"callback,omitempty"`
}

// SequenceWire is the wire shape of a Sequence: `{isSequence, steps,
// responses}`.
type SequenceWire struct {
	IsSequence bool                       `json:"isSequence"`
	Steps      []StepWire                 `json:"steps"`
	Responses  map[string]json.RawMessage `json:"responses"`
}

// emptySentinel is the "empty sequence" value substituted when unboxing
// does not find a sequence (gateway-proxy events, bare events with no
// _sequence property, or malformed orchestrated envelopes).
func emptySentinel() *SequenceWire {
	return &SequenceWire{IsSequence: false, Responses: map[string]json.RawMessage{}}
}

// OrchestratedEnvelope is the wire form carried between invocations.
type OrchestratedEnvelope struct {
	Type     string `json:"type"`
	Body     []byte `json:"body"`
	Sequence []byte `json:"sequence"`
	Headers  []byte `json:"headers"`
}

// UnboxResult is what Unbox produces for any of the three event shapes.
type UnboxResult struct {
	Kind        Kind
	Request     json.RawMessage
	Sequence    *SequenceWire
	Headers     map[string]string
	GatewayMeta json.RawMessage // non-nil only for KindGatewayProxy
}

// gatewayProbe is used structurally to recognize a gateway-proxy event
// without depending on the gatewayevent package (which needs headers and
// body decoded first, creating the cycle this avoids).
type gatewayProbe struct {
	Headers               map[string]string `json:"headers"`
	Body                  *string           `json:"body"`
	HTTPMethod            string            `json:"httpMethod"`
	RequestContext        json.RawMessage   `json:"requestContext"`
	QueryStringParameters json.RawMessage   `json:"queryStringParameters"`
}

type orchestratedProbe struct {
	Type     string `json:"type"`
	Body     []byte `json:"body"`
	Sequence []byte `json:"sequence"`
	Headers  []byte `json:"headers"`
}

type bareProbe struct {
	Sequence json.RawMessage `json:"_sequence"`
}

// Unbox recognizes an inbound event's shape. It tries, in order: the
// orchestrated marker, the gateway-proxy shape, then falls back to bare.
func Unbox(event []byte) (*UnboxResult, error) {
	var orch orchestratedProbe
	if err := jsoncodec.Unmarshal(event, &orch); err == nil && orch.Type == WireType {
		return unboxOrchestrated(orch)
	}

	var gw gatewayProbe
	if err := jsoncodec.Unmarshal(event, &gw); err == nil && isGatewayShape(gw) {
		return unboxGatewayProxy(event, gw)
	}

	return unboxBare(event)
}

func isGatewayShape(gw gatewayProbe) bool {
	return gw.Headers != nil && (gw.Body != nil || gw.HTTPMethod != "" || gw.RequestContext != nil)
}

func unboxOrchestrated(orch orchestratedProbe) (*UnboxResult, error) {
	bodyBytes, err := compress.Decompress(orch.Body)
	if err != nil {
		return nil, fmt.Errorf("envelope: decompress body: %w", err)
	}
	seqBytes, err := compress.Decompress(orch.Sequence)
	if err != nil {
		return nil, fmt.Errorf("envelope: decompress sequence: %w", err)
	}
	headerBytes, err := compress.Decompress(orch.Headers)
	if err != nil {
		return nil, fmt.Errorf("envelope: decompress headers: %w", err)
	}

	var seq SequenceWire
	if len(seqBytes) > 0 {
		if err := jsoncodec.Unmarshal(seqBytes, &seq); err != nil {
			// Malformed envelope: synthesize an empty sequence and
			// continue with a bare request.
			return &UnboxResult{Kind: KindBare, Request: bodyBytes, Sequence: emptySentinel(), Headers: map[string]string{}}, nil
		}
	} else {
		seq = *emptySentinel()
	}

	headers := map[string]string{}
	if len(headerBytes) > 0 {
		_ = jsoncodec.Unmarshal(headerBytes, &headers)
	}

	return &UnboxResult{
		Kind:     KindOrchestrated,
		Request:  bodyBytes,
		Sequence: &seq,
		Headers:  headers,
	}, nil
}

func unboxGatewayProxy(event []byte, gw gatewayProbe) (*UnboxResult, error) {
	var request json.RawMessage
	if gw.Body != nil && *gw.Body != "" {
		request = json.RawMessage(*gw.Body)
		if !json.Valid(request) {
			// Gateway bodies are delivered as strings; if not
			// themselves JSON, carry the string through as a JSON
			// string value so Request is always valid JSON.
			encoded, _ := jsoncodec.Marshal(*gw.Body)
			request = json.RawMessage(encoded)
		}
	} else {
		request = json.RawMessage("{}")
	}

	return &UnboxResult{
		Kind:        KindGatewayProxy,
		Request:     request,
		Sequence:    emptySentinel(),
		Headers:     gw.Headers,
		GatewayMeta: json.RawMessage(event),
	}, nil
}

func unboxBare(event []byte) (*UnboxResult, error) {
	var probe bareProbe
	if err := jsoncodec.Unmarshal(event, &probe); err != nil {
		return nil, fmt.Errorf("envelope: unbox bare event: %w", err)
	}

	result := &UnboxResult{
		Kind:     KindBare,
		Request:  event,
		Sequence: emptySentinel(),
		Headers:  map[string]string{},
	}

	if len(probe.Sequence) > 0 && string(probe.Sequence) != "null" {
		var seq SequenceWire
		if err := jsoncodec.Unmarshal(probe.Sequence, &seq); err != nil {
			return nil, fmt.Errorf("envelope: unbox bare event _sequence: %w", err)
		}
		result.Sequence = &seq

		stripped, err := stripSequenceProperty(event)
		if err != nil {
			return nil, err
		}
		result.Request = stripped
	}

	return result, nil
}

func stripSequenceProperty(event []byte) (json.RawMessage, error) {
	var generic map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(event, &generic); err != nil {
		return event, nil // not an object; nothing to strip
	}
	delete(generic, "_sequence")
	out, err := jsoncodec.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("envelope: re-marshal stripped bare event: %w", err)
	}
	return out, nil
}

// Box compresses body, sequence, and headers independently and returns
// the orchestrated envelope ready to be invoked on the next function.
func Box(body json.RawMessage, sequence SequenceWire, headers map[string]string, compressionMinBytes int) (*OrchestratedEnvelope, error) {
	bodyBytes, err := compress.Compress(body, compressionMinBytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: compress body: %w", err)
	}

	seqJSON, err := jsoncodec.Marshal(sequence)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal sequence: %w", err)
	}
	seqBytes, err := compress.Compress(seqJSON, compressionMinBytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: compress sequence: %w", err)
	}

	headerJSON, err := jsoncodec.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal headers: %w", err)
	}
	headerBytes, err := compress.Compress(headerJSON, compressionMinBytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: compress headers: %w", err)
	}

	return &OrchestratedEnvelope{
		Type:     WireType,
		Body:     bodyBytes,
		Sequence: seqBytes,
		Headers:  headerBytes,
	}, nil
}
