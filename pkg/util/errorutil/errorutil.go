package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts service and transport errors to a DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var locked *domain.LoginLockedError
	if errors.As(err, &locked) {
		return &DomainError{
			Code:       "LOGIN_LOCKED",
			Message:    "login temporarily locked",
			HTTPStatus: http.StatusTooManyRequests,
			Details:    map[string]any{"retry_after_seconds": retryAfterSeconds(locked)},
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, domain.ErrEmailAlreadyRegistered):
		return &DomainError{Code: "EMAIL_ALREADY_REGISTERED", Message: "email already registered", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrRefreshTokenNotFound):
		return &DomainError{Code: "INVALID_CREDENTIALS", Message: "invalid credentials", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrTokenExpired):
		return &DomainError{Code: "TOKEN_EXPIRED", Message: "token expired", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrInvalidToken):
		return &DomainError{Code: "INVALID_TOKEN", Message: "invalid token", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrPasswordTooLong):
		return &DomainError{
			Code:       "VALIDATION_FAILED",
			Message:    "password must be at most 72 bytes",
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]any{"field": "password"},
			Err:        err,
		}
	case errors.Is(err, domain.ErrUserNotFound):
		return &DomainError{Code: "USER_NOT_FOUND", Message: "user not found", HTTPStatus: http.StatusNotFound, Err: err}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}

	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

func retryAfterSeconds(locked *domain.LoginLockedError) int {
	secs := int(locked.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RetryAfterSeconds returns the Retry-After value for lock-out errors, or 0.
func RetryAfterSeconds(err error) int {
	var locked *domain.LoginLockedError
	if errors.As(err, &locked) {
		return retryAfterSeconds(locked)
	}
	return 0
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestTimeout:
		return "REQUEST_TIMEOUT"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
