package store

import (
	"errors"
	"fmt"
)

// Kind classifies store failures.
type Kind int

const (
	// KindNotFound means the experiment or trial does not exist, or the trial
	// is no longer pending.
	KindNotFound Kind = iota + 1
	// KindInvalidConfiguration means the request failed validation before any
	// state was touched.
	KindInvalidConfiguration
	// KindOptimizerFailure means the optimizer rejected an initialize,
	// propose or record call.
	KindOptimizerFailure
	// KindUnsupportedOperation means the operation does not apply to the
	// experiment, e.g. a Pareto front for a single objective.
	KindUnsupportedOperation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindOptimizerFailure:
		return "optimizer_failure"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrOptimizerFailure     = &Error{Kind: KindOptimizerFailure}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
)

// Error is returned by every store and Pareto operation.
type Error struct {
	Kind Kind
	Op   string // e.g. "create", "next_trial"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ValidationError describes a single rejected field of a creation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
