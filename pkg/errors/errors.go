// Package errors defines the structured error taxonomy for the chat access
// service. Every error carries a machine-readable code, an HTTP status, and
// optional metadata for logging and metrics. The distinction between the
// token failure codes is deliberately collapsed for end users: clients only
// ever see "chat link is invalid or expired".
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is the machine-readable error classification.
type Code string

const (
	CodeInvalidRequest          Code = "invalid_request"
	CodeUnauthorized            Code = "unauthorized"
	CodeProviderNotFound        Code = "provider_not_found"
	CodeTokenNotFound           Code = "token_not_found"
	CodeTokenSuperseded         Code = "token_superseded"
	CodeTokenExpired            Code = "token_expired"
	CodeSessionNotFound         Code = "session_not_found"
	CodeAllocationConflict      Code = "allocation_conflict"
	CodeExhaustedRetries        Code = "exhausted_retries"
	CodeRateLimited             Code = "rate_limited"
	CodeConversationUnavailable Code = "conversation_unavailable"
	CodeInvariantViolation      Code = "invariant_violation"
	CodeInternal                Code = "internal"
)

// AppError is the structured application error.
type AppError struct {
	code       Code
	httpStatus int
	message    string
	cause      error
	metadata   map[string]interface{}
	retryAfter time.Duration
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the machine-readable error code.
func (e *AppError) Code() Code { return e.code }

// HTTPStatus returns the HTTP status the error maps to.
func (e *AppError) HTTPStatus() int { return e.httpStatus }

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error { return e.cause }

// RetryAfter returns the retry hint for rate limited errors, zero otherwise.
func (e *AppError) RetryAfter() time.Duration { return e.retryAfter }

// WithCause attaches an underlying error.
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata attaches a metadata key/value pair for logging.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata.
func (e *AppError) Metadata() map[string]interface{} { return e.metadata }

// New creates an AppError with an explicit code, status, and message.
func New(code Code, httpStatus int, message string) *AppError {
	return &AppError{
		code:       code,
		httpStatus: httpStatus,
		message:    message,
	}
}

// Wrap wraps err as an internal AppError unless it already is one.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(CodeInternal, http.StatusInternalServerError, message).WithCause(err)
}

// ErrInvalidRequest reports a malformed or incomplete request.
func ErrInvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, http.StatusBadRequest, message)
}

// ErrUnauthorized reports a missing or invalid admin credential.
func ErrUnauthorized(message string) *AppError {
	return New(CodeUnauthorized, http.StatusUnauthorized, message)
}

// ErrProviderNotFound reports an unknown public identifier.
func ErrProviderNotFound(publicID string) *AppError {
	return New(CodeProviderNotFound, http.StatusNotFound, "provider not found").
		WithMetadata("public_id", publicID)
}

// ErrTokenNotFound reports a token value with no record for the provider.
func ErrTokenNotFound() *AppError {
	return New(CodeTokenNotFound, http.StatusNotFound, "token not found")
}

// ErrTokenSuperseded reports validation of a token that a newer mint replaced.
func ErrTokenSuperseded() *AppError {
	return New(CodeTokenSuperseded, http.StatusGone, "token superseded by a newer one")
}

// ErrTokenExpired reports validation of a token past its time-to-live.
func ErrTokenExpired() *AppError {
	return New(CodeTokenExpired, http.StatusGone, "token expired")
}

// ErrSessionNotFound reports a cached session id that no longer resolves.
func ErrSessionNotFound(sessionID string) *AppError {
	return New(CodeSessionNotFound, http.StatusNotFound, "session not found").
		WithMetadata("session_id", sessionID)
}

// ErrAllocationConflict reports a collision on public identifier insert.
// Callers retry internally with a fresh value before surfacing ErrExhaustedRetries.
func ErrAllocationConflict() *AppError {
	return New(CodeAllocationConflict, http.StatusConflict, "identifier allocation conflict")
}

// ErrExhaustedRetries reports that bounded retries were used up.
func ErrExhaustedRetries(attempts int) *AppError {
	return New(CodeExhaustedRetries, http.StatusInternalServerError, "exhausted allocation retries").
		WithMetadata("attempts", attempts)
}

// ErrRateLimited reports that the regeneration quota was exceeded.
func ErrRateLimited(retryAfter time.Duration) *AppError {
	e := New(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
	e.retryAfter = retryAfter
	return e
}

// ErrConversationUnavailable reports that the external conversation store
// failed after the bounded retry.
func ErrConversationUnavailable(cause error) *AppError {
	return New(CodeConversationUnavailable, http.StatusServiceUnavailable, "conversation store unavailable").
		WithCause(cause)
}

// ErrInvariantViolation reports an impossible store state, e.g. two issued
// tokens for one provider. It is never silently repaired.
func ErrInvariantViolation(detail string) *AppError {
	return New(CodeInvariantViolation, http.StatusInternalServerError, "invariant violation: "+detail)
}

// ErrInternal reports an unexpected internal failure.
func ErrInternal(message string) *AppError {
	return New(CodeInternal, http.StatusInternalServerError, message)
}

// CodeOf extracts the code from any error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

// HTTPStatusOf extracts the HTTP status from any error, defaulting to 500.
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.httpStatus
	}
	return http.StatusInternalServerError
}

// AsAppError attempts to extract an AppError from err.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// IsLinkFailure reports whether err belongs to the family of validation
// failures that clients must see as a single undifferentiated message.
// The individual codes remain available for logs and metrics.
func IsLinkFailure(err error) bool {
	switch CodeOf(err) {
	case CodeProviderNotFound, CodeTokenNotFound, CodeTokenSuperseded, CodeTokenExpired:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying at the storage layer.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeConversationUnavailable, CodeInternal:
		return true
	}
	return false
}
