// Package apperrors provides structured SDK errors with server-side context.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrTransport    = errors.New("transport failure")
	ErrMalformed    = errors.New("malformed response")
	ErrRejected     = errors.New("request rejected")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
)

// Error provides a structured error with server context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Code     int    // Server-supplied error code, 0 when not applicable
	Op       string // Operation that failed (e.g., "job.kill")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Transport creates a transport-failure error carrying the raw response text.
func Transport(op, responseText string) error {
	msg := fmt.Sprintf("%s: request failed", op)
	if responseText != "" {
		msg = fmt.Sprintf("%s: request failed: %s", op, responseText)
	}
	return &Error{
		Sentinel: ErrTransport,
		Message:  msg,
		Op:       op,
	}
}

// Malformed creates an error for an empty or unexpectedly shaped response body.
func Malformed(op string, cause error) error {
	msg := fmt.Sprintf("%s: malformed response", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: malformed response: %v", op, cause)
	}
	return &Error{
		Sentinel: ErrMalformed,
		Message:  msg,
		Op:       op,
		Cause:    cause,
	}
}

// Rejected creates an error for a well-formed reply carrying a non-zero
// server error code.
func Rejected(op string, code int, message string) error {
	return &Error{
		Sentinel: ErrRejected,
		Message:  fmt.Sprintf("%s: server rejected request (code %d): %s", op, code, message),
		Code:     code,
		Op:       op,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
	}
}

// Precondition creates an error for an operation rejected client-side
// before any request was made.
func Precondition(op, reason string) error {
	return &Error{
		Sentinel: ErrPrecondition,
		Message:  fmt.Sprintf("%s: %s", op, reason),
		Op:       op,
	}
}

// ServerCode extracts the server error code from an error chain.
// Returns 0 if the error does not carry one.
func ServerCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
