// Package orchestrate wraps a plain Go function into a Lambda handler that
// understands the orchestrated-envelope wire format: sequence-of-steps
// continuation, dynamic-reference parameter resolution, an error cascade
// with a user-registrable Error Matcher, and side-channel progress
// notifications to a distinguished tracker function.
//
// A wrapped handler accepts one of three event shapes (a bare JSON event,
// an orchestrated envelope carrying a Sequence, or an API Gateway proxy
// request) and is handed a HandlerContext built fresh for that invocation:
// a scoped logger, AWS request metadata, the active Sequence (if any),
// gateway headers/query/claims when applicable, a secret fetcher, a
// database-client factory, a closure to invoke another function directly,
// and the Error Matcher consulted when the handler itself fails.
//
// Bootstrap wires every backend a Config selects (the next-function
// invoker, the Vault-backed secret fetcher, the Postgres connection
// factory, Prometheus metrics, and OpenTelemetry tracing) into a
// ready-to-use Wrapper; BootstrapTrackerStore builds the S3 or bbolt
// tracker store. Callers that want
// finer control can call the individual package constructors re-exported
// below instead.
//
// # Sequences
//
// A Sequence is an ordered plan of remaining function invocations. Handlers
// register one on the HandlerContext to fan out into a multi-step
// pipeline; the wrapper takes care of invoking each step in turn, resolving
// `{"lookup": "stepId.path"}` references against prior steps' responses,
// and notifying the configured tracker function after every step.
//
// # Error handling
//
// A handler's returned error is routed through the cascade (the Error
// Matcher's ordered expectations, then its default policy, then the
// active step's own error policy) before either being absorbed (treated
// as success) or surfaced as one of the taxonomy's typed errors,
// returned to the platform directly or marshalled into a gateway error
// response.
package orchestrate
