package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedRecord   = errors.New("malformed record")
	ErrMissingPartition  = errors.New("missing partition")
	ErrCorruptArtifact   = errors.New("corrupt artifact")
	ErrInvalidInput      = errors.New("invalid input")
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrSessionClosed     = errors.New("session closed")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is and As re-export the standard helpers so callers importing this package
// under the name "errors" keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingPartition):
		return http.StatusNotFound
	case errors.Is(err, ErrCorruptArtifact), errors.Is(err, ErrSearchUnavailable),
		errors.Is(err, ErrSessionClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
