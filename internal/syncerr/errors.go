package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code categorizes every surfaced failure. The taxonomy is flat and total:
// each error carries exactly one code.
type Code string

const (
	CodeBadRequest Code = "BAD_REQUEST"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// Error is the structured error carried across the executor, adapter, and
// HTTP boundaries. Details hold machine-readable context such as
// expectedVersion/actualVersion, pk, table, or constraint.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with optional details.
func New(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Newf creates a coded error with a formatted message and no details.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error. If err is already coded it is
// returned unchanged so adapter codes survive the executor boundary; a nil
// err returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Internal wraps an unexpected error as INTERNAL, preserving its message but
// nothing else.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return &Error{Code: CodeInternal, Message: err.Error(), cause: err}
}

// CodeOf extracts the code from any error; non-coded errors are INTERNAL.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// As unwraps err into *Error when possible.
func As(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// HTTPStatus maps a code to its fixed HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
