package metrics

import (
	"context"
	"errors"

	"github.com/robinsondotnet/aws-orchestrate/internal/runtime/errorsx"
)

// ErrorCategory buckets a cascade outcome for the error-count vector.
type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryHandled    ErrorCategory = "handled"
	ErrorCategoryUnhandled  ErrorCategory = "unhandled"
	ErrorCategoryServerless ErrorCategory = "serverless"
	ErrorCategoryDownstream ErrorCategory = "downstream"
	ErrorCategoryOther      ErrorCategory = "other"
)

// Classifier buckets an error for metrics, defaulting to the taxonomy's
// own error type when the error is one of its members.
type Classifier func(error) ErrorCategory

// DefaultClassifier recognizes the taxonomy's handled, unhandled and
// serverless errors first (other typed errors, such as rethrow or
// error-within-error, are classified by the rules below), then context
// deadline/cancellation as "downstream" (an invoke/secret-
// fetch/database call that didn't come back in time), falling through to
// "other".
func DefaultClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	if typed, ok := errorsx.AsTyped(err); ok {
		switch typed.ErrorType() {
		case errorsx.TypeHandled:
			return ErrorCategoryHandled
		case errorsx.TypeUnhandled:
			return ErrorCategoryUnhandled
		case errorsx.TypeServerless:
			return ErrorCategoryServerless
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryDownstream
	}
	return ErrorCategoryOther
}
