package predicate

import (
	"context"
	"testing"
	"time"
)

func TestEvalBoolSimpleComparison(t *testing.T) {
	expr, err := Compile(`responses.a.v > 1`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	ok, err := expr.EvalBool(context.Background(), map[string]any{
		"responses": map[string]any{"a": map[string]any{"v": 2}},
	})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if !ok {
		t.Fatal("expected predicate to evaluate truthy")
	}
}

func TestEvalBoolFalseBranch(t *testing.T) {
	expr, err := Compile(`responses.a.v > 10`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	ok, err := expr.EvalBool(context.Background(), map[string]any{
		"responses": map[string]any{"a": map[string]any{"v": 2}},
	})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if ok {
		t.Fatal("expected predicate to evaluate falsy")
	}
}

func TestEvalInterruptedOnTimeout(t *testing.T) {
	expr, err := Compile(`(function(){ while(true) {} })()`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = expr.Eval(ctx, nil)
	if err == nil {
		t.Fatal("expected infinite loop to be interrupted")
	}
}

func TestCompileRejectsInvalidSyntax(t *testing.T) {
	if _, err := Compile("{{{"); err == nil {
		t.Fatal("expected compile error for invalid syntax")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{float64(0), false},
		{float64(1), true},
		{map[string]any{}, true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Fatalf("Truthy(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}
