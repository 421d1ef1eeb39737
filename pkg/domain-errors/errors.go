// Package domainerrors carries transport-agnostic error codes from services to
// the HTTP layer. Services return *Error values (or wrap lower-level errors with
// one) and httputil.WriteError maps the code to a status and response body.
package domainerrors

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a class of failure. Codes are part of the public API
// contract: they appear verbatim in JSON error bodies.
type Code string

const (
	// Contact gate rejections (client-correctable).
	CodeBotSuspected         Code = "bot_suspected"
	CodeRateLimited          Code = "rate_limited"
	CodeChallengeFailed      Code = "challenge_failed"
	CodeHumanCheckIncomplete Code = "human_check_incomplete"
	CodeValidation           Code = "validation_failed"

	// Operator-fixable and environmental failures.
	CodeMisconfigured  Code = "service_misconfigured"
	CodeDeliveryFailed Code = "delivery_failed"

	// Generic request failures.
	CodeBadRequest       Code = "bad_request"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeNotFound         Code = "not_found"
	CodeMethodNotAllowed Code = "method_not_allowed"
	CodePayloadTooLarge  Code = "payload_too_large"
	CodeTimeout          Code = "timeout"
	CodeInternal         Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to clients for
// client-correctable codes; Details carries optional per-field information.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	// ResetAt is set for CodeRateLimited so callers can communicate retry timing.
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithDetails returns a validation error carrying field-level detail.
func WithDetails(code Code, msg string, details map[string]string) *Error {
	return &Error{Code: code, Message: msg, Details: details}
}

// RateLimited returns a CodeRateLimited error that reports when the window resets.
func RateLimited(msg string, resetAt time.Time) *Error {
	return &Error{Code: CodeRateLimited, Message: msg, ResetAt: resetAt}
}

// Is reports whether any error in err's chain is a domain error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the first domain error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// As returns the first domain error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
