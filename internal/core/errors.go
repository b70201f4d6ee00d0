// Package core holds the coded error values shared by calculators, the
// engine and the service layers.
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Invalidf wraps a formatted cause in ErrInvalidParameter.
func Invalidf(format string, args ...any) error {
	return WrapError(ErrInvalidParameter, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Calculator errors
	ErrInvalidParameter = &Error{Code: "INVALID_PARAMETER", Message: "invalid parameter"}
	ErrLengthMismatch   = &Error{Code: "LENGTH_MISMATCH", Message: "input arrays have different lengths"}

	// Engine errors
	ErrUnknownIndicator = &Error{Code: "UNKNOWN_INDICATOR", Message: "unknown indicator type"}

	// Input errors
	ErrParse = &Error{Code: "PARSE_FAILED", Message: "could not parse input"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
