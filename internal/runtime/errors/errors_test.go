package errors

import (
	"errors"
	"testing"
)

func TestConfigValidationErrorJoinsMessages(t *testing.T) {
	err := NewConfigValidationError(ErrConfigRequired, ErrStageRequired)
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty joined message")
	}
	if !errors.Is(err, ErrConfigRequired) {
		t.Fatal("expected errors.Is to unwrap ErrConfigRequired")
	}
	if !errors.Is(err, ErrStageRequired) {
		t.Fatal("expected errors.Is to unwrap ErrStageRequired")
	}
}
