package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the chat router and the admin HTTP surface.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeNoMatchingTicket = "NO_MATCHING_TICKET"
	CodeAlreadyClosed    = "ALREADY_CLOSED"
	CodeDeliveryFailed   = "DELIVERY_FAILED"
	CodeStorageFailed    = "STORAGE_FAILED"
	CodeValidation       = "VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; a DomainError matches a sentinel when the codes are equal.
var (
	ErrNotFound         = &DomainError{Code: CodeNotFound}
	ErrNoMatchingTicket = &DomainError{Code: CodeNoMatchingTicket}
	ErrAlreadyClosed    = &DomainError{Code: CodeAlreadyClosed}
	ErrDelivery         = &DomainError{Code: CodeDeliveryFailed}
	ErrStorage          = &DomainError{Code: CodeStorageFailed}
	ErrValidation       = &DomainError{Code: CodeValidation}
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

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
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

// NewNoMatchingTicket signals a routing miss: no open ticket carries the reference.
func NewNoMatchingTicket(ref string) error {
	return &DomainError{
		Code:       CodeNoMatchingTicket,
		Message:    "no open ticket matches the replied message",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"support_ref": ref},
	}
}

func NewAlreadyClosed(ticketID int64) error {
	return &DomainError{
		Code:       CodeAlreadyClosed,
		Message:    fmt.Sprintf("ticket #%d already closed", ticketID),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID},
	}
}

// NewDeliveryError wraps an outbound transport failure.
func NewDeliveryError(err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "message delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewStorageError wraps a durable read or write failure.
func NewStorageError(err error) error {
	return &DomainError{
		Code:       CodeStorageFailed,
		Message:    "storage failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the domain code carried by err; unknown errors report CodeInternal.
func CodeOf(err error) string {
	if de := ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}
