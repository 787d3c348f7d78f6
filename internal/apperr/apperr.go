// Package apperr classifies failures of the booking flow so that callers can
// decide how a conversation should recover without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the recovery class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed customer input; re-prompt the same step.
	KindValidation
	// KindNotFound is a missing show, booking or category; the flow ends.
	KindNotFound
	// KindConflict is a seat taken concurrently; recompute and re-prompt.
	KindConflict
	// KindPolicyDenied is a cancellation refused by show policy.
	KindPolicyDenied
	// KindExpired is a lapsed hold or booking; the customer starts over.
	KindExpired
	// KindTransient is a storage or broker failure that may succeed later.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPolicyDenied:
		return "policy_denied"
	case KindExpired:
		return "expired"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// Error carries a Kind, the operation that failed, a message that is safe to
// show to the customer and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(kind Kind, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func Validation(op, msg string) error   { return New(KindValidation, op, msg) }
func NotFound(op, msg string) error     { return New(KindNotFound, op, msg) }
func Conflict(op, msg string) error     { return New(KindConflict, op, msg) }
func PolicyDenied(op, msg string) error { return New(KindPolicyDenied, op, msg) }
func Expired(op, msg string) error      { return New(KindExpired, op, msg) }

// Transient marks a storage failure. A nil err yields nil.
func Transient(op string, err error) error {
	return Wrap(KindTransient, op, "", err)
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the customer-facing text attached to err, if any.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
