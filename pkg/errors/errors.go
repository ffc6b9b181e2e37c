// Package errors provides structured error types for panelgrid.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the client core, the service and the CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly notification messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The four error kinds of the editing protocol map to codes as follows:
//   - INVALID_PATH: local precondition violation, never reaches the network
//   - VALIDATION_FAILED: imported or decoded data does not have the tree/size shape
//   - REMOTE_REJECTED: the service refused a semantically invalid edit
//   - NETWORK_UNAVAILABLE: transport failure
//
// The remaining codes refine these for the service and session handling.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPath, "path %s leads to a leaf", p)
//	if errors.Is(err, errors.ErrCodeInvalidPath) {
//	    // programmer or UI error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "POST %s", url)
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Local precondition and input errors
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeValidation   Code = "VALIDATION_FAILED"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNoop         Code = "NO_OP"

	// Service-side refusals
	ErrCodeRemoteRejected Code = "REMOTE_REJECTED"
	ErrCodeMerge          Code = "MERGE_FAILED"
	ErrCodeStaleInverse   Code = "STALE_INVERSE"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeSessionNotFound Code = "SESSION_NOT_FOUND"

	// Session errors
	ErrCodeSessionInvalid Code = "SESSION_INVALID"
	ErrCodeSessionExpired Code = "SESSION_EXPIRED"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_UNAVAILABLE"
	ErrCodeTimeout Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetCodeOr is [GetCode] with a fallback for errors that carry no code.
func GetCodeOr(err error, fallback Code) Code {
	if c := GetCode(err); c != "" {
		return c
	}
	return fallback
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether err is one of the kinds that are handled at the
// call site by leaving history untouched and notifying the user. Invalid paths
// are contract violations and are not recoverable.
func Recoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidPath, ErrCodeInternal:
		return false
	case "":
		return err != nil
	}
	return true
}

// HTTPStatus maps an error code to the status the service answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidPath, ErrCodeValidation, ErrCodeInvalidInput,
		ErrCodeRemoteRejected, ErrCodeMerge, ErrCodeStaleInverse, ErrCodeNoop:
		return http.StatusBadRequest
	case ErrCodeSessionInvalid, ErrCodeSessionExpired, ErrCodeSessionNotFound:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
