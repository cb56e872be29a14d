package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrValidation    ErrorType = "VALIDATION_ERROR"
	ErrNotFound      ErrorType = "NOT_FOUND"
	ErrDatabase      ErrorType = "DATABASE_ERROR"
	ErrInternal      ErrorType = "INTERNAL_ERROR"
	ErrAuthFailed    ErrorType = "AUTH_FAILED"
	ErrForbidden     ErrorType = "FORBIDDEN"
	ErrRateLimited   ErrorType = "RATE_LIMITED"
	ErrInvalidParams ErrorType = "INVALID_REQUEST"
	ErrReadOnly      ErrorType = "READ_ONLY"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Details    []string  `json:"details,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// NewValidation carries every failed check so callers can report them at once.
func NewValidation(msg string, details []string) *AppError {
	e := New(ErrValidation, msg, nil)
	e.Details = details
	return e
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidParams, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func NewDatabase(msg string, cause error) *AppError {
	return New(ErrDatabase, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err is an AppError of the given type.
func Is(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// Public returns the form that is safe to send to a client: internal and
// database failures lose their message and details.
func (e *AppError) Public() *AppError {
	if e.HTTPStatus < http.StatusInternalServerError {
		return e
	}
	return &AppError{
		Type:       ErrInternal,
		Message:    "internal server error",
		Suggestion: e.Suggestion,
		HTTPStatus: e.HTTPStatus,
	}
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrInvalidParams:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrForbidden, ErrReadOnly:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrValidation, ErrInvalidParams:
		return "Check the request parameters and try again."
	case ErrAuthFailed:
		return "Check the admin key."
	case ErrRateLimited:
		return "Retry after a short delay."
	case ErrDatabase:
		return "Retry later; the monitoring store is unavailable."
	case ErrReadOnly:
		return "Disable dashboard.read_only to allow changes."
	default:
		return ""
	}
}
