package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the cache, the registry and the
// reference resolver.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a blob read on a key that holds no value.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidState indicates a contract violation: re-setting a
	// set-once field or mutating a committed asset.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodePartialWrite indicates a chunked write where some chunks may
	// have landed. The whole key must be rewritten.
	ErrCodePartialWrite ErrorCode = "PARTIAL_WRITE"

	// ErrCodeUpstreamIO indicates a failure reading a caller-supplied
	// source stream.
	ErrCodeUpstreamIO ErrorCode = "UPSTREAM_IO"
)

// Error is the structured error type returned across bundlecore.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation (e.g. "get blob").
	Op string

	// Key is the cache key or asset ID involved, if any.
	Key string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This lets
// callers write errors.Is(err, ir.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound     = &Error{Code: ErrCodeNotFound}
	ErrInvalidState = &Error{Code: ErrCodeInvalidState}
	ErrPartialWrite = &Error{Code: ErrCodePartialWrite}
	ErrUpstreamIO   = &Error{Code: ErrCodeUpstreamIO}
)

// NewNotFoundError creates an Error for a missing key.
func NewNotFoundError(op, key string) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, Key: key, Message: "no value stored"}
}

// NewInvalidStateError creates an Error for a contract violation.
func NewInvalidStateError(op, message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Op: op, Message: message}
}

// NewPartialWriteError creates an Error for an indeterminate chunked write.
func NewPartialWriteError(op, key string, err error) *Error {
	return &Error{
		Code:    ErrCodePartialWrite,
		Op:      op,
		Key:     key,
		Message: "some chunks may have been written; rewrite the whole key",
		Err:     err,
	}
}

// NewUpstreamIOError creates an Error for a failed source stream read.
func NewUpstreamIOError(op, key string, err error) *Error {
	return &Error{Code: ErrCodeUpstreamIO, Op: op, Key: key, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if err is, or wraps, a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsInvalidState returns true if err is, or wraps, an INVALID_STATE error.
func IsInvalidState(err error) bool { return hasCode(err, ErrCodeInvalidState) }

// IsPartialWrite returns true if err is, or wraps, a PARTIAL_WRITE error.
func IsPartialWrite(err error) bool { return hasCode(err, ErrCodePartialWrite) }

// IsUpstreamIO returns true if err is, or wraps, an UPSTREAM_IO error.
func IsUpstreamIO(err error) bool { return hasCode(err, ErrCodeUpstreamIO) }
