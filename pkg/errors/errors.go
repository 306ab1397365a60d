// Package errors provides structured error types for gerberstack.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes fall into two groups. Batch-level codes are terminal for a request:
//   - NO_INPUT_FILES: the upload carried no files at all
//   - EMPTY_LAYER_SET: aggregation found nothing to render
//   - RENDER_FAILED: the stackup renderer reported an error
//
// Item-level codes are recovered locally and only ever logged:
//   - CONFIG_PARSE_ERROR: the client configuration could not be decoded
//   - ARCHIVE_UNREADABLE: one archive in a batch could not be opened
//   - FILE_UNREADABLE: one loose file in a batch could not be read
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoInputFiles, "no files uploaded")
//	if errors.Is(err, errors.ErrCodeNoInputFiles) {
//	    // reject the request
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeArchiveUnreadable, origErr, "open %s", name)
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
	// Batch-level failures
	ErrCodeNoInputFiles  Code = "NO_INPUT_FILES"
	ErrCodeEmptyLayerSet Code = "EMPTY_LAYER_SET"
	ErrCodeRenderFailed  Code = "RENDER_FAILED"

	// Item-level failures (recovered locally)
	ErrCodeConfigParse       Code = "CONFIG_PARSE_ERROR"
	ErrCodeArchiveUnreadable Code = "ARCHIVE_UNREADABLE"
	ErrCodeFileUnreadable    Code = "FILE_UNREADABLE"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidColor Code = "INVALID_COLOR"

	// Runtime errors
	ErrCodeTimeout     Code = "TIMEOUT"
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

// coder is implemented by richer error types that live next to the data they
// carry (for example the aggregation error that holds a manifest).
type coder interface {
	Code() Code
}

// Is reports whether err has the given error code.
// It walks the error chain and returns true for the first *Error or coder
// whose code matches.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case coder:
			if e.Code() == code {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if nothing in the chain carries a code.
func GetCode(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case coder:
			return e.Code()
		}
		err = errors.Unwrap(err)
	}
	return ""
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

// HTTPStatus maps an error code to the status the API responds with.
// A timeout anywhere in the chain wins over the outer code.
func HTTPStatus(err error) int {
	if Is(err, ErrCodeTimeout) {
		return http.StatusGatewayTimeout
	}
	switch GetCode(err) {
	case ErrCodeNoInputFiles, ErrCodeEmptyLayerSet,
		ErrCodeInvalidInput, ErrCodeInvalidColor:
		return http.StatusBadRequest
	case ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
