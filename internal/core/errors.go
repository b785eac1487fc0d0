// Package core defines the error taxonomy shared by every component of the
// hyphal substrate core (spec.md §7). Errors are a small, stable sum type
// rather than exceptions: every user-visible failure carries a stable code,
// a human-readable message, and the trace id of the call that produced it.
package core

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error classification. Unlike Message,
// Code never changes meaning across releases.
type Code string

const (
	CodeInvalidArgument     Code = "InvalidArgument"
	CodeUnauthenticated     Code = "Unauthenticated"
	CodePermissionDenied    Code = "PermissionDenied"
	CodePolicyDenied        Code = "PolicyDenied"
	CodeExpired             Code = "Expired"
	CodeAlreadyRecorded     Code = "AlreadyRecorded"
	CodeRateLimited         Code = "RateLimited"
	CodeNotFound            Code = "NotFound"
	CodeUnavailable         Code = "Unavailable"
	CodeInternal            Code = "Internal"
)

// Error is the error type surfaced across every package boundary in the
// core. It deliberately avoids embedding transport concerns (no HTTP status
// code); the transport layer maps Code to a status.
type Error struct {
	Code         Code
	Message      string
	RetryAfterMS int64
	TraceID      string
	PolicyID     string // set only for CodePolicyDenied
	Cause        error
}

func (e *Error) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("%s: %s (trace=%s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, core.New(SomeCode, "")) to match purely on Code,
// which is how callers should branch on error kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that preserves cause for %w-style unwrapping.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithTrace returns a copy of e with TraceID set.
func (e *Error) WithTrace(traceID string) *Error {
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// WithRetryAfter returns a copy of e with RetryAfterMS set.
func (e *Error) WithRetryAfter(ms int64) *Error {
	cp := *e
	cp.RetryAfterMS = ms
	return &cp
}

// Sentinel constructors for errors.Is comparisons against a bare code.
var (
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
	ErrUnauthenticated  = &Error{Code: CodeUnauthenticated}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrPolicyDenied     = &Error{Code: CodePolicyDenied}
	ErrExpired          = &Error{Code: CodeExpired}
	ErrAlreadyRecorded  = &Error{Code: CodeAlreadyRecorded}
	ErrRateLimited      = &Error{Code: CodeRateLimited}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrUnavailable      = &Error{Code: CodeUnavailable}
	ErrInternal         = &Error{Code: CodeInternal}
)

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// CodeInternal otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
