package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to callers of the lifecycle operations.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeChannelMismatch    = "CHANNEL_MISMATCH"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeNoAvailableHandler = "NO_AVAILABLE_HANDLER"
	CodeConcurrency        = "CONCURRENCY_CONFLICT"
	CodeNoActiveAssignment = "NO_ACTIVE_ASSIGNMENT"
	CodeChainCorrupted     = "CHAIN_CORRUPTED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL_ERROR"
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
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewChannelMismatch(message string, details map[string]any) error {
	return NewDomainError(CodeChannelMismatch, message, http.StatusUnprocessableEntity, details)
}

// NewInvalidTransition reports a state change absent from the transition table.
func NewInvalidTransition(current, requested, message string) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusConflict, map[string]any{
		"current_state":   current,
		"requested_state": requested,
	})
}

func NewNoAvailableHandler(details map[string]any) error {
	return NewDomainError(CodeNoAvailableHandler, "no available handler for candidate pool", http.StatusServiceUnavailable, details)
}

func NewConcurrencyConflict(details map[string]any) error {
	return NewDomainError(CodeConcurrency, "ticket changed concurrently; re-read and retry", http.StatusConflict, details)
}

func NewNoActiveAssignment(ticketID int64) error {
	return NewDomainError(CodeNoActiveAssignment, "ticket has no active assignment", http.StatusInternalServerError,
		map[string]any{"ticket_id": ticketID})
}

func NewChainCorrupted(message string, details map[string]any) error {
	return NewDomainError(CodeChainCorrupted, message, http.StatusInternalServerError, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts err into a DomainError, keeping nil as nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
