// Package apperr provides error types carrying an HTTP status, adapted
// from the teacher's internal/common/errors for the gitwatchd control
// surface (cmd/gitwatchd, internal/httpapi).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeConflict         = "CONFLICT"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError carries an HTTP status alongside a machine-readable code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NotFound creates a 404 error for the named resource id.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// ValidationError creates a 400 error scoped to a specific field.
func ValidationError(field, message string) *AppError {
	return &AppError{
		Code:       CodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// ServiceUnavailable creates a 503 error for a dependency outage.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       CodeServiceUnavailable,
		Message:    fmt.Sprintf("%s is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Wrap wraps err with message, preserving an existing AppError's code and
// status or falling back to a 500.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}
	return &AppError{
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
