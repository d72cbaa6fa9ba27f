// Package handlercontext implements Context Assembly: the
// immutable-from-the-handler's-perspective record built once per
// invocation and handed to the user function.
//
// Some pieces of this record (new-sequence registration, response
// headers/content type) would otherwise be module-level mutable state
// reset at handler entry to avoid cross-invocation bleed on reused
// containers. Here they are ordinary instance fields on a struct built
// fresh per invocation instead of package-level variables, so the
// per-invocation reset falls out of constructing a new Context per call
// rather than needing an explicit reset step.
package handlercontext

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/dbfactory"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/logging"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/matcher"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/metadata"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/secrets"
	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/sequence"
)

// AWSInfo carries the function's own AWS context fields.
type AWSInfo struct {
	FunctionName  string
	AWSRequestID  string
	RemainingTime func() time.Duration
}

// Invoker is the next-function invoker closure exposed on the context.
type Invoker func(ctx context.Context, name string, payload []byte) ([]byte, error)

// Context is the per-invocation record supplied to a user handler.
type Context struct {
	Logger   logging.ServiceLogger
	AWS      AWSInfo
	Sequence *sequence.Sequence

	Gateway *events.APIGatewayProxyRequest // nil for non-gateway events
	Headers map[string]string
	Query   map[string]string
	Claims  map[string]any

	FetchSecret Fetcher
	DB          dbfactory.Factory
	Invoke      Invoker
	Matcher     *matcher.Matcher

	newSequence     *sequence.Sequence
	statusCode      int
	contentType     string
	responseHeaders metadata.Metadata
}

// Fetcher mirrors secrets.Fetcher to avoid forcing every caller to import
// the secrets package just to hold a reference on Context.
type Fetcher = secrets.Fetcher

// Options bundles the constructor's inputs: everything Context Assembly
// composes into a Context.
type Options struct {
	Logger      logging.ServiceLogger
	AWS         AWSInfo
	Sequence    *sequence.Sequence
	Gateway     *events.APIGatewayProxyRequest
	Headers     map[string]string
	Query       map[string]string
	Claims      map[string]any
	FetchSecret Fetcher
	DB          dbfactory.Factory
	Invoke      Invoker
	Matcher     *matcher.Matcher
}

// New assembles a Context from Options, defaulting nil maps to empty
// ones so handlers never need a nil check.
func New(opts Options) *Context {
	headers := opts.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	query := opts.Query
	if query == nil {
		query = map[string]string{}
	}
	claims := opts.Claims
	if claims == nil {
		claims = map[string]any{}
	}

	return &Context{
		Logger:          opts.Logger,
		AWS:             opts.AWS,
		Sequence:        opts.Sequence,
		Gateway:         opts.Gateway,
		Headers:         headers,
		Query:           query,
		Claims:          claims,
		FetchSecret:     opts.FetchSecret,
		DB:              opts.DB,
		Invoke:          opts.Invoke,
		Matcher:         opts.Matcher,
		statusCode:      0,
		responseHeaders: metadata.Metadata{},
	}
}

// RegisterSequence records a newly-built sequence for the wrapper to
// invoke after the current continuation, if any.
func (c *Context) RegisterSequence(seq *sequence.Sequence) {
	c.newSequence = seq
}

// NewSequence returns the sequence registered via RegisterSequence during
// this invocation, or nil if none was registered.
func (c *Context) NewSequence() *sequence.Sequence {
	return c.newSequence
}

// SetStatusCode overrides the success status code used when marshalling
// a gateway response.
func (c *Context) SetStatusCode(code int) {
	c.statusCode = code
}

// StatusCode returns the status code set via SetStatusCode, or 0 if
// unset (the wrapper applies its own default in that case).
func (c *Context) StatusCode() int {
	return c.statusCode
}

// SetContentType overrides the gateway response's Content-Type header.
func (c *Context) SetContentType(contentType string) {
	c.contentType = contentType
}

// ContentType returns the content type set via SetContentType, or "" if
// unset.
func (c *Context) ContentType() string {
	return c.contentType
}

// AppendHeader adds a header to the outbound gateway response. Appended
// headers override the wrapper's CORS defaults; a content type set via
// SetContentType overrides an appended Content-Type.
func (c *Context) AppendHeader(key, value string) {
	c.responseHeaders = c.responseHeaders.With(key, value)
}

// ResponseHeaders returns a copy of every header appended via
// AppendHeader, safe for the caller to mutate.
func (c *Context) ResponseHeaders() map[string]string {
	return c.responseHeaders.Clone()
}
