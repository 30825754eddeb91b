// Package apperr defines the typed failures surfaced to tool callers.
//
// Every failure carries a Kind so the transport layer can tell bad input
// apart from a backend that is unavailable.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidFormat    Kind = "invalid_format"
	KindInvalidType      Kind = "invalid_type"
	KindNotFound         Kind = "not_found"
	KindOutOfRange       Kind = "out_of_range"
	KindRangeInverted    Kind = "range_inverted"
	KindEmptyList        Kind = "empty_list"
	KindMissingField     Kind = "missing_field"
	KindUnknownOperation Kind = "unknown_operation"
	KindQueryExecution   Kind = "query_execution_error"
	KindConfiguration    Kind = "configuration_error"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrInvalidFormat    = &Error{Kind: KindInvalidFormat}
	ErrInvalidType      = &Error{Kind: KindInvalidType}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrOutOfRange       = &Error{Kind: KindOutOfRange}
	ErrRangeInverted    = &Error{Kind: KindRangeInverted}
	ErrEmptyList        = &Error{Kind: KindEmptyList}
	ErrMissingField     = &Error{Kind: KindMissingField}
	ErrUnknownOperation = &Error{Kind: KindUnknownOperation}
	ErrQueryExecution   = &Error{Kind: KindQueryExecution}
	ErrConfiguration    = &Error{Kind: KindConfiguration}
)

// Error is a classified failure. Field names the offending argument, if any.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a field-scoped error with a formatted message.
func New(kind Kind, field, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// QueryExecution wraps a data-store failure.
func QueryExecution(err error) *Error {
	return &Error{
		Kind:    KindQueryExecution,
		Message: "query execution failed",
		Err:     err,
	}
}

// Configuration reports a startup configuration problem.
func Configuration(format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsInvalidInput reports whether err was caused by the caller's arguments
// rather than by the backend.
func IsInvalidInput(err error) bool {
	switch KindOf(err) {
	case KindInvalidFormat, KindInvalidType, KindNotFound, KindOutOfRange,
		KindRangeInverted, KindEmptyList, KindMissingField, KindUnknownOperation:
		return true
	}
	return false
}
