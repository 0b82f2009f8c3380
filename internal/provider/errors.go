package provider

import (
	"fmt"
	"net/http"
)

// Error is a failed provider call. It is always an upstream failure,
// distinct from authentication, validation and storage errors.
type Error struct {
	Op         string
	StatusCode int  // provider HTTP status, 0 if no response was received
	Timeout    bool // the call ran past its deadline
	Err        error

	transport bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Upstream marks the error as coming from the external provider.
func (e *Error) Upstream() bool { return true }

func (e *Error) retryable() bool {
	if e.Timeout {
		return false
	}
	if e.transport {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// invalidResponse reports a completion whose content does not have the
// requested shape.
func invalidResponse(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, StatusCode: http.StatusOK, Err: fmt.Errorf("invalid response: "+format, args...)}
}
