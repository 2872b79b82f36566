package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error code
type ErrorCode string

const (
	// Upstream errors
	CodeTransportFailure      ErrorCode = "TRANSPORT_FAILURE"
	CodeInvalidResponse       ErrorCode = "INVALID_RESPONSE"
	CodeAuthenticationFailure ErrorCode = "AUTHENTICATION_FAILURE"
	CodeMalformedResponse     ErrorCode = "MALFORMED_RESPONSE"
	CodeStreamUnavailable     ErrorCode = "STREAM_UNAVAILABLE"

	// Run errors
	CodePreconditionViolation ErrorCode = "PRECONDITION_VIOLATION"
	CodeRemuxFailure          ErrorCode = "REMUX_FAILURE"

	// Validation errors
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	CodeDatabase ErrorCode = "DATABASE_ERROR"
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Config errors
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// Internal errors
	CodeInternal ErrorCode = "INTERNAL_ERROR"
	CodeUnknown  ErrorCode = "UNKNOWN_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Payload    json.RawMessage
	Err        error
	Context    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s - HTTP %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithStatus records the HTTP status reported by the upstream
func (e *AppError) WithStatus(status int) *AppError {
	e.StatusCode = status
	return e
}

// WithPayload attaches the offending response body
func (e *AppError) WithPayload(payload []byte) *AppError {
	if len(payload) > 0 {
		e.Payload = append(json.RawMessage(nil), payload...)
	}
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// TransportFailure reports a non-success status (or a failed round trip when status is 0)
func TransportFailure(url string, status int, err error) *AppError {
	return Wrap(err, CodeTransportFailure, "Request failed: "+url).WithStatus(status)
}

// InvalidResponse reports a body that does not decode as JSON
func InvalidResponse(url string, status int) *AppError {
	return New(CodeInvalidResponse, "Invalid JSON from: "+url).WithStatus(status)
}

// AuthenticationFailure reports a login that did not yield a session
func AuthenticationFailure(message string, payload []byte) *AppError {
	return New(CodeAuthenticationFailure, message).WithPayload(payload)
}

// MalformedResponse reports JSON that lacks the expected nested shape
func MalformedResponse(message string, payload []byte) *AppError {
	return New(CodeMalformedResponse, message).WithPayload(payload)
}

// StreamUnavailable reports a stream lookup without a usable stream field
func StreamUnavailable(message string, payload []byte) *AppError {
	return New(CodeStreamUnavailable, message).WithPayload(payload)
}

// PreconditionViolation reports an invalid combination of run options
func PreconditionViolation(message string) *AppError {
	return New(CodePreconditionViolation, message)
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, CodeDatabase, message)
}

// ConfigError creates a configuration error
func ConfigError(message string, err error) *AppError {
	if err != nil {
		return Wrap(err, CodeConfig, message)
	}
	return New(CodeConfig, message)
}

// NotFoundError creates a not found error
func NotFoundError(resource, identifier string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, identifier))
}

// IsRetryable determines if an error is retryable.
// Only failed round trips and 5xx responses qualify.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code != CodeTransportFailure {
			return false
		}
		return appErr.StatusCode == 0 || appErr.StatusCode >= 500
	}
	return false
}

// IsHarvestError reports whether err belongs to the harvest failure taxonomy
func IsHarvestError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeTransportFailure, CodeInvalidResponse, CodeAuthenticationFailure,
		CodeMalformedResponse, CodeStreamUnavailable, CodePreconditionViolation,
		CodeRemuxFailure:
		return true
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetPayload returns the payload attached to err, if any
func GetPayload(err error) json.RawMessage {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Payload
	}
	return nil
}
