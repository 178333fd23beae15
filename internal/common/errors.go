package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error classes shared by the checkout packages. Wrap them with fmt.Errorf("%w")
// and classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrCardValidation    = errors.New("card validation failed")
	ErrTransientPayment  = errors.New("transient payment failure")
	ErrTerminalPayment   = errors.New("terminal payment failure")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrUnsupportedRegion = errors.New("unsupported region")
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" && e.Message != e.Err.Error() {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the offending fields of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Fields[0].Field, e.Fields[0].Message)
}

// Unwrap reports ErrValidation so callers can classify with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// RateLimitError is returned when a client exhausted its request budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil || e.RetryAfter <= 0 {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

// Unwrap reports ErrRateLimited.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// StatusFor maps an error onto the HTTP status used by the API handlers.
func StatusFor(err error) int {
	var app *AppError
	if errors.As(err, &app) && app.HTTPStatus != 0 {
		return app.HTTPStatus
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedRegion),
		errors.Is(err, ErrCardValidation), errors.Is(err, ErrPaymentDeclined):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTransientPayment):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
