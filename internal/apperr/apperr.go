// Package apperr defines the taxonomy of application-level errors shared
// across components, matching the donor's light use of wrapped/sentinel
// errors (fmt.Errorf("...: %w", err)) rather than introducing a third-party
// errors library.
package apperr

import "errors"

// Code classifies an AppError for callers that need to branch on failure
// kind (retry vs. surface to the user vs. 5xx) without string-matching
// messages.
type Code string

const (
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeRateLimit           Code = "rate_limit"
	CodeQuotaExceeded       Code = "quota_exceeded"
	CodeAuthentication      Code = "authentication"
	CodeInvalidRequest      Code = "invalid_request"
	CodeValidation          Code = "validation"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeInternal            Code = "internal"
)

// AppError is the sealed-ish error type every component wraps
// infrastructure failures in before returning them across a package
// boundary, so a caller several layers up can still recover the Code via
// errors.As without depending on the originating package.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError with no wrapped cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap builds an AppError carrying err as its cause.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err is an AppError of the given code.
func Is(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// Retryable reports whether code represents a transient condition a
// failover/retry policy should attempt again, as opposed to one that will
// not resolve by itself (bad request, auth failure).
func (c Code) Retryable() bool {
	switch c {
	case CodeProviderUnavailable, CodeRateLimit, CodeInternal:
		return true
	default:
		return false
	}
}
