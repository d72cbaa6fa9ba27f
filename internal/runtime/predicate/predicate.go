// Package predicate implements a sandboxed expression evaluator for step
// predicates and inline error-handler callbacks, in place of an
// eval-based approach: a small expression DSL running inside a goja VM.
//
// Expressions are plain JavaScript boolean/value expressions, not
// statements, and run inside a fresh goja VM per call with no injected
// filesystem or network bindings and a context-driven interrupt, so an
// expression that loops forever is killed rather than hanging the
// invocation: compile once, bind each data key as a top-level identifier, and cut the VM
// off via Interrupt() from a goroutine watching ctx.Done().
package predicate

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// errInterrupted is surfaced when an expression is killed for exceeding its
// evaluation deadline.
var errInterrupted = fmt.Errorf("predicate: evaluation interrupted")

// Expr is a compiled predicate/callback expression, safe for repeated
// concurrent evaluation against different bindings.
type Expr struct {
	source  string
	program *goja.Program
}

// Compile parses src as a JavaScript expression. It does not execute
// anything at compile time.
func Compile(src string) (*Expr, error) {
	wrapped := "(" + src + ")"
	program, err := goja.Compile("predicate", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("predicate: compile %q: %w", src, err)
	}
	return &Expr{source: src, program: program}, nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.source }

// Eval runs the expression with bindings exposed as top-level identifiers
// and returns its value converted to a native Go value (map/slice/string/
// float64/bool/nil). Evaluation is interrupted if ctx is cancelled before
// it completes.
func (e *Expr) Eval(ctx context.Context, bindings map[string]any) (any, error) {
	vm := goja.New()
	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("predicate: bind %q: %w", name, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(errInterrupted)
		case <-done:
		}
	}()

	value, err := vm.RunProgram(e.program)
	if err != nil {
		return nil, fmt.Errorf("predicate: eval %q: %w", e.source, err)
	}
	return value.Export(), nil
}

// EvalBool runs the expression and coerces its result to a boolean the way
// the cascade's disposition callbacks expect: a truthy return resolves
// the error.
func (e *Expr) EvalBool(ctx context.Context, bindings map[string]any) (bool, error) {
	value, err := e.Eval(ctx, bindings)
	if err != nil {
		return false, err
	}
	return Truthy(value), nil
}

// Truthy applies JavaScript-style truthiness to a Go value exported from a
// predicate evaluation.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}
