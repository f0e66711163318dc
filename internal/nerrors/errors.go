// Package nerrors defines the error taxonomy shared across the NERVA core.
//
// Every failure crossing a component boundary is classified into one Kind so
// the dispatcher can translate outcomes into task statuses and retry layers
// can decide whether another attempt is worthwhile.
package nerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound    Kind = "not_found"    // selector, entity, thread
	KindTimeout     Kind = "timeout"      // per-operation deadline exceeded
	KindUnavailable Kind = "unavailable"  // external collaborator down
	KindBadResponse Kind = "bad_response" // LLM output unparseable after retry
	KindAmbiguous   Kind = "ambiguous"    // router cannot decide
	KindRefused     Kind = "refused"      // safety gate blocked
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal" // invariant violation
)

// Error is the concrete error carried across component boundaries.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "playbook.click"
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Message != "":
		return e.Message
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap annotates err with a kind and operation.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound builds a not-found error.
func NotFound(op, message string) *Error { return New(KindNotFound, op, message) }

// Timeout builds a deadline-exceeded error.
func Timeout(op, message string) *Error { return New(KindTimeout, op, message) }

// Unavailable builds a collaborator-down error.
func Unavailable(op string, err error) *Error { return Wrap(KindUnavailable, op, err) }

// BadResponse builds an unparseable-output error.
func BadResponse(op, message string) *Error { return New(KindBadResponse, op, message) }

// Ambiguous builds a router-undecided error.
func Ambiguous(op, message string) *Error { return New(KindAmbiguous, op, message) }

// Refused builds a safety-gate error.
func Refused(op, message string) *Error { return New(KindRefused, op, message) }

// Cancelled builds a cancellation error.
func Cancelled(op string) *Error { return New(KindCancelled, op, "cancelled") }

// Internal builds an invariant-violation error.
func Internal(op, message string) *Error { return New(KindInternal, op, message) }

// KindOf returns the kind of err, mapping context errors to their taxonomy
// entries and anything unclassified to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FromContext converts a context error into a taxonomy error; err must be
// non-nil.
func FromContext(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op, "deadline exceeded")
	}
	return Cancelled(op)
}

// IsTransient reports whether another attempt may succeed. Only collaborator
// outages and timeouts retry; everything else is deterministic.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}
