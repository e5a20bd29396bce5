// Package vaulterr provides the error taxonomy shared by every orchestrator
// and the HTTP layer: a small set of categories, which the HTTP layer maps
// to status codes in a single place (internal/httpapi's statusForCode).
package vaulterr

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"
)

// Code classifies an error so that callers (chiefly the HTTP layer) can
// react uniformly instead of matching on error strings.
type Code int

const (
	// OK is returned by Classify for a nil error. Not a valid code for a
	// constructed Error.
	OK Code = iota

	// Unknown covers anything that doesn't fit a more specific category.
	Unknown

	// NotFound: identifier absent, expired, or already exhausted.
	NotFound

	// Exhausted: uses_remaining reached zero (download limit burned).
	Exhausted

	// InvalidArgument: malformed request, size/type reject, bad identifier
	// format.
	InvalidArgument

	// ResourceExhausted: the calling source is throttled/blocked.
	ResourceExhausted

	// FailedPrecondition: post-decrypt integrity check failed.
	FailedPrecondition

	// Internal: bugs or unexpected state in this service.
	Internal

	// Unavailable: the KV store or disk could not be reached.
	Unavailable
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Exhausted:
		return "exhausted"
	case InvalidArgument:
		return "invalid_argument"
	case ResourceExhausted:
		return "resource_exhausted"
	case FailedPrecondition:
		return "failed_precondition"
	case Internal:
		return "internal"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the concrete error type produced by this service's internal
// packages. It carries a Code, an optional operator-facing message, the
// call site, and the wrapped cause.
type Error struct {
	Code  Code
	msg   string
	frame xerrors.Frame
	err   error
}

func (e *Error) Error() string {
	return fmt.Sprint(e)
}

func (e *Error) Format(s fmt.State, v rune) {
	xerrors.FormatError(e, s, v)
}

func (e *Error) FormatError(p xerrors.Printer) (next error) {
	if e.msg == "" {
		p.Printf("code=%v", e.Code)
	} else {
		p.Printf("%s (code=%v)", e.msg, e.Code)
	}
	e.frame.Format(p)
	return e.err
}

// Unwrap returns the wrapped cause, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// Message returns the operator-facing message, distinct from any
// client-facing text the HTTP layer chooses to render.
func (e *Error) Message() string {
	return e.msg
}

// New builds an *Error. callDepth follows xerrors.Caller conventions: pass 1
// when New is called directly from the function raising the error.
func New(c Code, err error, callDepth int, msg string) *Error {
	return &Error{
		Code:  c,
		msg:   msg,
		frame: xerrors.Caller(callDepth),
		err:   err,
	}
}

// Newf formats msg/args and calls New with callDepth 2 (for use by the
// function that detected the error, not a helper further down the stack).
func Newf(c Code, err error, format string, args ...interface{}) *Error {
	return New(c, err, 2, fmt.Sprintf(format, args...))
}

// Classify returns the Code of err, unwrapping through any *Error in the
// chain. context.Canceled/DeadlineExceeded classify as Unavailable, since
// in this service they only ever originate from a KV or disk call that
// gave up. A nil error classifies as OK.
func Classify(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if xerrors.As(err, &e) {
		return e.Code
	}
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	return Unknown
}
