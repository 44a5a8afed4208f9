// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid or missing input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeNotLinked indicates a subscription without a multistream link (HTTP 404)
	TypeNotLinked ErrorType = "not_linked"
	// TypeLinkMismatch indicates an asymmetric multistream link pair (HTTP 409)
	TypeLinkMismatch ErrorType = "link_mismatch"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeUpstream indicates a platform or transport call failure (HTTP 502)
	TypeUpstream ErrorType = "upstream"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound, TypeNotLinked:
		return http.StatusNotFound
	case TypeLinkMismatch:
		return http.StatusConflict
	case TypeUpstream:
		return http.StatusBadGateway
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotLinkedError creates an error for a subscription without a counterpart link.
func NotLinkedError(message string) *Error {
	return &Error{
		Type:    TypeNotLinked,
		Message: message,
		Context: make(map[string]any),
	}
}

// LinkMismatchError creates an error for an asymmetric multistream link pair.
func LinkMismatchError(message string) *Error {
	return &Error{
		Type:    TypeLinkMismatch,
		Message: message,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// UpstreamError creates a new upstream failure error (HTTP 502).
func UpstreamError(message string, cause error) *Error {
	return &Error{
		Type:    TypeUpstream,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsUserFacing reports whether the error type carries a specific message the
// invoking user should see verbatim. Upstream and internal failures are
// surfaced as a generic message instead.
func IsUserFacing(err error) bool {
	structuredErr := AsStructuredError(err)
	switch structuredErr.Type {
	case TypeValidation, TypeNotFound, TypeNotLinked, TypeLinkMismatch:
		return true
	default:
		return false
	}
}
