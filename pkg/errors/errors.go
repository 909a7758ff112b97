// Package errors provides the error type shared by the margin services and
// the HTTP layer, carrying a machine-readable kind alongside the message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// StatusCode represents an HTTP status code error
type StatusCode int

// Error implements error
func (status StatusCode) Error() string {
	return http.StatusText(int(status))
}

func Status(code int) *Error {
	return Wrap(StatusCode(code)).Reason(http.StatusText(code))
}

var (
	Invalid       *Error = Status(http.StatusBadRequest)
	NotFound      *Error = Status(http.StatusNotFound)
	Conflict      *Error = Status(http.StatusConflict)
	Unprocessable *Error = Status(http.StatusUnprocessableEntity)
	Internal      *Error = Status(http.StatusInternalServerError)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func Wrap(err error) *Error {
	return &Error{cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

// Msg returns a copy of the error with the message set to given value
func (e *Error) Msg(format string, args ...interface{}) *Error {
	err := *e
	err.Message = fmt.Sprintf(format, args...)
	return &err
}

// WithField returns a copy of the error with a field error appended
func (e *Error) WithField(kind, field, reason string) *Error {
	err := *e
	err.Fields = append(err.Fields, NewFieldError(kind, field, reason))
	return &err
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error or its cause
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return errors.Is(e.cause, target)
}

// HTTPStatus maps the error cause to an HTTP status code, defaulting to 500.
func (e *Error) HTTPStatus() int {
	var status StatusCode
	if errors.As(e.cause, &status) {
		return int(status)
	}
	return http.StatusInternalServerError
}
