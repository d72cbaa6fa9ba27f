// Package logging defines the structured-logging contract the orchestration
// runtime binds to each invocation's HandlerContext.
package logging

import (
	"log/slog"
	"reflect"
)

// LogFields represents structured logging key/value pairs used by the
// orchestration runtime.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract the orchestration runtime
// requires. Handler authors already standardized on slog or a logrus-shaped
// logger can adapt either without depending on the other.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLoggerAdapter captures the capabilities required by
// NewEntryServiceLogger. The constraint is generic so third-party
// entry-shaped loggers (loggers whose methods return their own concrete
// interface type) can be used without additional wrappers.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("aws-orchestrate: slog logger cannot be nil")
	}
	return &slogServiceLogger{inner: log}
}

// NewEntryServiceLogger wraps an EntryLogger (for example a logrus.Entry) so
// it can be bound into a HandlerContext without forcing a slog dependency on
// the handler author.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if v := reflect.ValueOf(any(entry)); !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		panic("aws-orchestrate: entry logger cannot be nil")
	}
	return &entryServiceLogger[T]{entry: entry}
}

type slogServiceLogger struct {
	inner *slog.Logger
}

func (s *slogServiceLogger) With(fields LogFields) ServiceLogger {
	return &slogServiceLogger{inner: s.inner.With(toSlogArgs(fields)...)}
}

func (s *slogServiceLogger) Debug(msg string, fields LogFields) {
	s.inner.Debug(msg, toSlogArgs(fields)...)
}

func (s *slogServiceLogger) Info(msg string, fields LogFields) {
	s.inner.Info(msg, toSlogArgs(fields)...)
}

func (s *slogServiceLogger) Error(msg string, err error, fields LogFields) {
	args := toSlogArgs(fields)
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.inner.Error(msg, args...)
}

func (s *slogServiceLogger) Trace(msg string, fields LogFields) {
	s.inner.Debug(msg, toSlogArgs(fields)...)
}

type entryServiceLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryServiceLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryServiceLogger[T]{entry: applyEntryFields(e.entry, fields)}
}

func (e *entryServiceLogger[T]) Debug(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Debug(msg)
}

func (e *entryServiceLogger[T]) Info(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Info(msg)
}

func (e *entryServiceLogger[T]) Error(msg string, err error, fields LogFields) {
	logger := applyEntryFields(e.entry, fields)
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Error(msg)
}

func (e *entryServiceLogger[T]) Trace(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Trace(msg)
}

func toSlogArgs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func applyEntryFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	if len(fields) == 0 || any(entry) == nil {
		return entry
	}
	enriched := entry
	for key, value := range fields {
		enriched = enriched.WithField(key, value)
	}
	return enriched
}
