package domain

import (
	"errors"
	"strings"
)

// Error is a relay failure carrying a stable code of the form
// RR-<AREA>-<NNNN>. The number reads like an HTTP status: 4xxx for caller
// mistakes, 5xxx for server side trouble.
//
// The package-level values below are templates. Callers derive a new Error
// with WithDetails or WithCause and never modify a template in place.
type Error struct {
	Code    string
	Message string
	Details string // safe to show to clients, such as the room name
	Cause   error  // logged, never sent to clients
}

// NewError returns an error template.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[" + e.Code + "] " + e.Public())
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

// Public is the text that may leave the process: message and details,
// without the cause.
func (e *Error) Public() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e with details set.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

var (
	// Coordination store (STORE).
	ErrStoreUnavailable = NewError("RR-STORE-5030", "coordination store unavailable")

	// Subscriptions (SUB). ErrSubscriptionClosed is used as a cause once the
	// process handle has been released.
	ErrSubscriptionFailure = NewError("RR-SUB-5020", "channel subscription failed")
	ErrSubscriptionClosed  = NewError("RR-SUB-5021", "subscription handle closed")

	// Connections (CONN). Raised for events about a connection with no
	// tracked record, such as a second disconnect.
	ErrUnknownConnection = NewError("RR-CONN-4040", "unknown connection")

	// Arguments (ARG).
	ErrInvalidFrame    = NewError("RR-ARG-4000", "invalid frame")
	ErrInvalidGroup    = NewError("RR-ARG-4001", "invalid group name")
	ErrPayloadTooLarge = NewError("RR-ARG-4002", "payload too large")

	// System (SYS).
	ErrInternalServer = NewError("RR-SYS-5000", "internal server error")
	ErrRateLimited    = NewError("RR-SYS-4290", "too many requests")
)
