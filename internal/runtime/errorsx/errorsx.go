// Package errorsx implements the typed error kinds that flow through
// the Wrapper Pipeline's error cascade.
package errorsx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Type tags the taxonomy kind, carried on the wire as part of a gateway
// error response body.
type Type string

const (
	TypeHandled           Type = "handled-error"
	TypeUnhandled         Type = "unhandled-error"
	TypeDefault           Type = "default-error"
	TypeRethrow           Type = "rethrow-error"
	TypeErrorWithinError  Type = "error-within-error"
	TypeServerless        Type = "serverless-error"
	TypeCallDepthExceeded Type = "call-depth-exceeded"
)

// Typed is satisfied by every member of the taxonomy; the cascade inspects
// this interface rather than concrete types so callback-supplied errors
// that merely implement it are recognized too.
type Typed interface {
	error
	Name() string
	Code() string
	HTTPStatus() int
	Message() string
	Stack() string
	RequestID() string
	CorrelationID() string
	ErrorType() Type
}

// base carries the fields shared by every taxonomy member.
type base struct {
	code          string
	httpStatus    int
	message       string
	stack         string
	requestID     string
	correlationID string
	errType       Type
	cause         error
}

func newBase(errType Type, code string, httpStatus int, message string, cause error) base {
	var stack string
	if wrapped := errors.WithStack(causeOrNew(cause, message)); wrapped != nil {
		stack = fmt.Sprintf("%+v", wrapped)
	}
	return base{
		code:       code,
		httpStatus: httpStatus,
		message:    message,
		stack:      stack,
		errType:    errType,
		cause:      cause,
	}
}

func causeOrNew(cause error, message string) error {
	if cause != nil {
		return cause
	}
	return errors.New(message)
}

func (b base) Name() string          { return "aws-orchestrate/" + b.code }
func (b base) Code() string          { return b.code }
func (b base) HTTPStatus() int       { return b.httpStatus }
func (b base) Message() string       { return b.message }
func (b base) Stack() string         { return b.stack }
func (b base) RequestID() string     { return b.requestID }
func (b base) CorrelationID() string { return b.correlationID }
func (b base) ErrorType() Type       { return b.errType }
func (b base) Error() string         { return b.Name() + ": " + b.message }
func (b base) Unwrap() error         { return b.cause }

func withIDs[T any](b *base, requestID, correlationID string, rewrap func(base) T) T {
	b.requestID = requestID
	b.correlationID = correlationID
	return rewrap(*b)
}

// HandledError is raised when the Error Matcher recognized the inner error
// but the disposition could not resolve it locally.
type HandledError struct {
	base
}

func NewHandledError(code string, cause error) *HandledError {
	msg := "handled error"
	if cause != nil {
		msg = cause.Error()
	}
	return &HandledError{base: newBase(TypeHandled, code, 500, msg, cause)}
}

func (e *HandledError) WithIDs(requestID, correlationID string) *HandledError {
	return withIDs(&e.base, requestID, correlationID, func(b base) *HandledError { return &HandledError{base: b} })
}

// UnhandledError is raised when no matcher expectation matched and the
// default policy is "default".
type UnhandledError struct {
	base
}

func NewUnhandledError(defaultCode string, cause error) *UnhandledError {
	msg := "unhandled error"
	if cause != nil {
		msg = cause.Error()
	}
	return &UnhandledError{base: newBase(TypeUnhandled, defaultCode, 500, msg, cause)}
}

func (e *UnhandledError) WithIDs(requestID, correlationID string) *UnhandledError {
	return withIDs(&e.base, requestID, correlationID, func(b base) *UnhandledError { return &UnhandledError{base: b} })
}

// ServerlessError is a thin, user-constructible error that passes through
// the cascade unchanged aside from enrichment.
type ServerlessError struct {
	base
	FunctionName   string
	Classification string
}

func NewServerlessError(httpStatus int, message, classification string) *ServerlessError {
	return &ServerlessError{
		base:           newBase(TypeServerless, classification, httpStatus, message, nil),
		Classification: classification,
	}
}

// Enrich sets functionName/correlationId/awsRequestId and rewrites the
// classification prefix with the function name.
func (e *ServerlessError) Enrich(functionName, awsRequestID, correlationID string) *ServerlessError {
	enriched := *e
	enriched.FunctionName = functionName
	enriched.requestID = awsRequestID
	enriched.correlationID = correlationID
	enriched.Classification = functionName + "/" + e.Classification
	enriched.code = enriched.Classification
	return &enriched
}

// RethrowError preserves an already-typed error's identity for
// re-emission, avoiding nested wrapping.
type RethrowError struct {
	base
	Original Typed
}

func NewRethrowError(original Typed) *RethrowError {
	return &RethrowError{
		base: base{
			code:          original.Code(),
			httpStatus:    original.HTTPStatus(),
			message:       original.Message(),
			stack:         original.Stack(),
			requestID:     original.RequestID(),
			correlationID: original.CorrelationID(),
			errType:       TypeRethrow,
			cause:         original,
		},
		Original: original,
	}
}

// ErrorWithinError carries both an outer failure (raised inside an error
// handler) and its inner cause.
type ErrorWithinError struct {
	base
	Outer error
	Inner error
}

func NewErrorWithinError(outer, inner error) *ErrorWithinError {
	msg := "error raised while handling another error"
	if outer != nil {
		msg = outer.Error()
	}
	return &ErrorWithinError{
		base:  newBase(TypeErrorWithinError, "error-within-error", 500, msg, inner),
		Outer: outer,
		Inner: inner,
	}
}

// CallDepthExceeded is raised when a function's self-invocation count
// exceeds the configured limit. Nothing in this implementation raises it
// automatically (fan-out/call-depth tracking is out of scope), but the
// type is kept constructible as part of the taxonomy.
type CallDepthExceeded struct {
	base
	Depth int
	Limit int
}

func NewCallDepthExceeded(depth, limit int) *CallDepthExceeded {
	return &CallDepthExceeded{
		base:  newBase(TypeCallDepthExceeded, "call-depth-exceeded", 508, fmt.Sprintf("call depth %d exceeds limit %d", depth, limit), nil),
		Depth: depth,
		Limit: limit,
	}
}

// AsTyped returns err as a Typed taxonomy member if it is one.
func AsTyped(err error) (Typed, bool) {
	typed, ok := err.(Typed)
	return typed, ok
}

// GatewayBody is the JSON body shape for a gateway error response.
type GatewayBody struct {
	ErrorType     string `json:"errorType"`
	ErrorMessage  string `json:"errorMessage"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlationId"`
	RequestID     string `json:"requestId"`
	Stack         string `json:"stack,omitempty"`
}

// ToGatewayBody converts a taxonomy member into its wire body shape.
func ToGatewayBody(t Typed, includeStack bool) GatewayBody {
	body := GatewayBody{
		ErrorType:     string(t.ErrorType()),
		ErrorMessage:  t.Message(),
		Code:          t.Code(),
		CorrelationID: t.CorrelationID(),
		RequestID:     t.RequestID(),
	}
	if includeStack {
		body.Stack = t.Stack()
	}
	return body
}
