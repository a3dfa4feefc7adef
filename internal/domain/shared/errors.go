// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Persistence errors
	ErrStorageIO = errors.New("storage i/o error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "access", "diary", "telegram"
	Op      string // Operation that failed, e.g., "Activate", "Fetch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Access domain errors
var (
	ErrKeyNotFound       = NewDomainError("access", "FindKey", ErrNotFound, "access key not found")
	ErrKeyAlreadyUsed    = NewDomainError("access", "Activate", ErrAlreadyProcessed, "access key already activated")
	ErrUserAlreadyActive = NewDomainError("access", "Activate", ErrAlreadyExists, "user already holds an activated key")
	ErrUserNotFound      = NewDomainError("access", "FindUser", ErrNotFound, "authorized user not found")
	ErrInvalidKeyToken   = NewDomainError("access", "Validate", ErrInvalidFormat, "access key token has invalid format")
	ErrNotAuthorized     = NewDomainError("access", "Authorize", ErrUnauthorized, "user is not authorized")
)

// Diary API errors
var (
	ErrDiaryCredentials = NewDomainError("diary", "Fetch", ErrUnauthorized, "diary API credential expired or invalid")
	ErrDiaryForbidden   = NewDomainError("diary", "Fetch", ErrForbidden, "diary API access forbidden, check profile settings")
	ErrDiaryUnreachable = NewDomainError("diary", "Fetch", ErrServiceUnavailable, "diary API unreachable after all attempts")
	ErrDiaryBadPayload  = NewDomainError("diary", "Parse", ErrInvalidFormat, "unexpected diary API payload shape")
)

// Telegram transport errors
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// Persistence errors
var (
	ErrStoreWriteFailed = NewDomainError("storage", "Save", ErrStorageIO, "failed to persist store document")
	ErrStoreLoadFailed  = NewDomainError("storage", "Load", ErrStorageIO, "failed to load store document")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
