package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a shiplens error code.
type ErrorCode string

const (
	ErrPrecondition   ErrorCode = "PRECONDITION_FAILED" // 400
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"     // 400
	ErrForbidden      ErrorCode = "FORBIDDEN"           // 403
	ErrNotFound       ErrorCode = "NOT_FOUND"           // 404
	ErrUnsupported    ErrorCode = "UNSUPPORTED_MEDIA"   // 415
	ErrUpstream       ErrorCode = "UPSTREAM_FAILED"     // 502
	ErrInternal       ErrorCode = "INTERNAL"            // 500
)

// ShipError represents a structured error with code, status, and details.
type ShipError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ShipError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPrecondition creates a 400 error for a required input that was not supplied.
// These are reported before any network call and are never retried.
func NewPrecondition(msg string, missing ...string) *ShipError {
	e := &ShipError{
		Code:    ErrPrecondition,
		Status:  400,
		Message: msg,
	}
	if len(missing) > 0 {
		e.Details = map[string]any{"missing": missing}
	}
	return e
}

// NewInvalidRequest creates a 400 error for malformed request parameters.
func NewInvalidRequest(msg string) *ShipError {
	return &ShipError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewForbidden creates a 403 error for a caller the daemon does not serve.
func NewForbidden(msg string) *ShipError {
	return &ShipError{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewUnsupportedMedia creates a 415 error for a body that is not JSON.
func NewUnsupportedMedia(contentType string) *ShipError {
	return &ShipError{
		Code:    ErrUnsupported,
		Status:  415,
		Message: "Content-Type must be application/json",
		Details: map[string]any{"content_type": contentType},
	}
}

// NewNotFound creates a 404 error when no cached shipment exists for a tab.
func NewNotFound(identifier string) *ShipError {
	return &ShipError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("no cached shipment: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *ShipError {
	return &ShipError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewUpstream creates a 502 error for a transport failure talking to the
// upstream API, or a body that claimed to be JSON but was not.
func NewUpstream(err error) *ShipError {
	msg := "upstream request failed"
	if err != nil {
		msg = err.Error()
	}
	return &ShipError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ShipError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ShipError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a ShipError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *ShipError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// CodeOf returns the code of err when it is (or wraps) a ShipError, else "".
func CodeOf(err error) ErrorCode {
	var sErr *ShipError
	if stderrors.As(err, &sErr) {
		return sErr.Code
	}
	return ""
}

// Message returns the human-facing message of err: the ShipError message when
// err is one, otherwise err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var sErr *ShipError
	if stderrors.As(err, &sErr) {
		return sErr.Message
	}
	return err.Error()
}
