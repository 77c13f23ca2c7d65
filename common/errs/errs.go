// Package errs defines the error taxonomy shared by ingress, worker and
// dashboard code. Errors carry a Kind so callers can decide between
// rejecting a request, retrying through the queue, or dropping a job.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how it must be handled.
type Kind string

const (
	// KindValidation is a missing or malformed field; surfaced as 4xx, never retried.
	KindValidation Kind = "validation"
	// KindNotFound is a referenced blob or record that does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict is a write that would replace something already stored.
	KindConflict Kind = "conflict"
	// KindStorage is a disk, database or network failure; retried via queue redelivery.
	KindStorage Kind = "storage"
	// KindDataLoss is a binary that vanished between acceptance and processing.
	KindDataLoss Kind = "data_loss"
	// KindInternal is anything else.
	KindInternal Kind = "internal"
)

// Error is an application error with a kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, errs.NotFound) works
// against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Validation = &Error{Kind: KindValidation}
	NotFound   = &Error{Kind: KindNotFound}
	Conflict   = &Error{Kind: KindConflict}
	Storage    = &Error{Kind: KindStorage}
	DataLoss   = &Error{Kind: KindDataLoss}
)

// E builds an *Error.
func E(kind Kind, op, msg string, err error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Validationf builds a validation error with a formatted message.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error with a formatted message.
func NotFoundf(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error with a formatted message.
func Conflictf(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapStorage wraps err as a storage error. A nil err stays nil.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
