package service

import (
	"errors"
	"fmt"
)

// Kind classifies errors so callers can map them to a response without
// matching individual sentinels.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindOwnership
	KindRateLimit
	KindValidation
	KindStorage
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindOwnership:
		return "ownership"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified error. Sentinels below are *Error values, so both
// errors.Is against a sentinel and KindOf work on wrapped chains.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request later.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorage || e.Kind == KindUpstream
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

var (
	// Token errors.
	ErrInvalidSignature = newError(KindAuth, "invalid token signature")
	ErrTokenExpired     = newError(KindAuth, "token expired")
	ErrMalformedToken   = newError(KindAuth, "malformed token")

	// API key errors.
	ErrKeyNotFound    = newError(KindAuth, "api key not found")
	ErrKeyRevoked     = newError(KindAuth, "api key revoked")
	ErrNotOwner       = newError(KindOwnership, "api key belongs to another user")
	ErrAlreadyRevoked = newError(KindValidation, "api key already revoked")

	// Account errors.
	ErrInvalidCredentials = newError(KindAuth, "incorrect username or password")
	ErrInactiveUser       = newError(KindAuth, "inactive user")
	ErrUserExists         = newError(KindValidation, "username or email already registered")

	ErrRateLimited = newError(KindRateLimit, "rate limit exceeded")
)

// ValidationError reports malformed input.
func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// storageError marks a store failure as retryable.
func storageError(op string, err error) error {
	return &Error{Kind: KindStorage, Err: fmt.Errorf("%s: %w", op, err)}
}

// upstream is implemented by errors from external providers.
type upstream interface {
	Upstream() bool
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var up upstream
	if errors.As(err, &up) && up.Upstream() {
		return KindUpstream
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient storage or upstream failure.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindStorage || k == KindUpstream
}
