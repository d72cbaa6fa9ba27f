// Package matcher implements an ordered list of user-registered
// expectations consulted by the error cascade before its default policy,
// plus the default policy itself.
package matcher

import (
	"context"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/errorsx"
)

// Callback is invoked when an expectation matches with a callback
// disposition. A truthy return resolves the error locally; a false return
// means the cascade should still wrap and re-surface it.
type Callback func(ctx context.Context, cause error) (bool, error)

// Forwarder invokes a named function with an error payload, used both by
// a matched expectation's forwardTo disposition and by the default
// policy's error-forwarding variant.
type Forwarder func(ctx context.Context, arn string, payload any) error

// Disposition is what happens when an expectation's predicate matches.
// Exactly one of Callback/ForwardTo may be set; neither set means "wrap
// as HandledError and re-surface".
type Disposition struct {
	Callback  Callback
	ForwardTo string
}

// Predicate decides whether an expectation applies to cause.
type Predicate func(cause error) bool

type expectation struct {
	predicate   Predicate
	code        string
	disposition Disposition
}

// DefaultPolicyKind selects which of the four default-policy variants
// applies when no expectation matches.
type DefaultPolicyKind string

const (
	PolicyDefault         DefaultPolicyKind = "default"
	PolicyHandlerFn       DefaultPolicyKind = "handler-fn"
	PolicyErrorForwarding DefaultPolicyKind = "error-forwarding"
	PolicyDefaultError    DefaultPolicyKind = "default-error"
)

// HandlerFn is the default policy's "handler-fn" variant: run locally,
// truthy return resolves, otherwise surface as UnhandledError.
type HandlerFn func(ctx context.Context, cause error) (bool, error)

// DefaultPolicy is the matcher's fallback when no expectation matches.
type DefaultPolicy struct {
	Kind         DefaultPolicyKind
	Code         string    // used by PolicyDefault
	HandlerFn    HandlerFn // used by PolicyHandlerFn
	ForwardARN   string    // used by PolicyErrorForwarding
	DefaultError error     // used by PolicyDefaultError
}

// Matcher is the ordered expectation registry plus default policy.
type Matcher struct {
	expectations  []expectation
	defaultPolicy DefaultPolicy
	forwarder     Forwarder
}

// New returns a matcher whose default policy surfaces UnhandledError with
// the given default code, and which uses forwarder for forwardTo
// dispositions and the error-forwarding default policy variant.
func New(defaultCode string, forwarder Forwarder) *Matcher {
	return &Matcher{
		defaultPolicy: DefaultPolicy{Kind: PolicyDefault, Code: defaultCode},
		forwarder:     forwarder,
	}
}

// SetDefaultPolicy overrides the matcher's fallback policy.
func (m *Matcher) SetDefaultPolicy(policy DefaultPolicy) {
	m.defaultPolicy = policy
}

// Add registers an expectation. disposition may be the zero value, which
// means "wrap as HandledError and re-surface" on match.
func (m *Matcher) Add(predicate Predicate, code string, disposition Disposition) {
	m.expectations = append(m.expectations, expectation{predicate: predicate, code: code, disposition: disposition})
}

// Outcome is what the matcher decided for a given cause.
type Outcome struct {
	// Resolved means the cascade should stop: either the original
	// handler result should be returned as-is, or (for error-forwarding)
	// the error was forwarded and should be swallowed locally.
	Resolved bool
	// Surfaced, when non-nil, is the typed error the cascade should
	// surface (thrown, or turned into a gateway error response).
	Surfaced errorsx.Typed
}

// Match runs the matcher against cause: first the ordered expectations,
// then the default policy if none matched.
func (m *Matcher) Match(ctx context.Context, cause error) (Outcome, error) {
	for _, exp := range m.expectations {
		if !exp.predicate(cause) {
			continue
		}
		return m.applyDisposition(ctx, exp, cause)
	}
	return m.applyDefaultPolicy(ctx, cause)
}

func (m *Matcher) applyDisposition(ctx context.Context, exp expectation, cause error) (Outcome, error) {
	switch {
	case exp.disposition.Callback != nil:
		resolved, err := exp.disposition.Callback(ctx, cause)
		if err != nil {
			return Outcome{}, err
		}
		if resolved {
			return Outcome{Resolved: true}, nil
		}
		return Outcome{Surfaced: errorsx.NewHandledError(exp.code, cause)}, nil
	case exp.disposition.ForwardTo != "":
		if m.forwarder == nil {
			return Outcome{}, errNoForwarder
		}
		if err := m.forwarder(ctx, exp.disposition.ForwardTo, errorPayload(cause)); err != nil {
			return Outcome{}, err
		}
		return Outcome{Resolved: true}, nil
	default:
		return Outcome{Surfaced: errorsx.NewHandledError(exp.code, cause)}, nil
	}
}

func (m *Matcher) applyDefaultPolicy(ctx context.Context, cause error) (Outcome, error) {
	switch m.defaultPolicy.Kind {
	case PolicyHandlerFn:
		if m.defaultPolicy.HandlerFn == nil {
			return Outcome{}, errNoHandlerFn
		}
		resolved, err := m.defaultPolicy.HandlerFn(ctx, cause)
		if err != nil {
			return Outcome{}, err
		}
		if resolved {
			return Outcome{Resolved: true}, nil
		}
		return Outcome{Surfaced: errorsx.NewUnhandledError(m.defaultCode(), cause)}, nil
	case PolicyErrorForwarding:
		if m.forwarder == nil {
			return Outcome{}, errNoForwarder
		}
		if err := m.forwarder(ctx, m.defaultPolicy.ForwardARN, errorPayload(cause)); err != nil {
			return Outcome{}, err
		}
		return Outcome{Resolved: true}, nil
	case PolicyDefaultError:
		typed, ok := errorsx.AsTyped(m.defaultPolicy.DefaultError)
		if !ok {
			typed = errorsx.NewHandledError("default-error", m.defaultPolicy.DefaultError)
		}
		return Outcome{Surfaced: typed}, nil
	default: // PolicyDefault
		return Outcome{Surfaced: errorsx.NewUnhandledError(m.defaultCode(), cause)}, nil
	}
}

func (m *Matcher) defaultCode() string {
	if m.defaultPolicy.Code != "" {
		return m.defaultPolicy.Code
	}
	return "unhandled"
}

func errorPayload(cause error) any {
	if typed, ok := errorsx.AsTyped(cause); ok {
		return errorsx.ToGatewayBody(typed, false)
	}
	return map[string]string{"errorMessage": cause.Error()}
}
