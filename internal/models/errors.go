package models

import (
	"errors"
	"net/http"
)

// ErrorKind classifies domain failures surfaced to callers
type ErrorKind string

// Error kinds
const (
	KindInvalidRequest        ErrorKind = "invalid_request"
	KindForbidden             ErrorKind = "forbidden"
	KindNotFound              ErrorKind = "not_found"
	KindPaymentIncomplete     ErrorKind = "payment_incomplete"
	KindPaymentMismatch       ErrorKind = "payment_mismatch"
	KindAmountMismatch        ErrorKind = "amount_mismatch"
	KindInsufficientInventory ErrorKind = "insufficient_inventory"
	KindAlreadyCancelled      ErrorKind = "already_cancelled"
	KindUnavailable           ErrorKind = "unavailable"
)

// HTTPStatus maps the kind to the status code returned at the boundary
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidRequest, KindPaymentIncomplete, KindPaymentMismatch,
		KindAmountMismatch, KindInsufficientInventory, KindAlreadyCancelled:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is a domain error. Message is safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// NewError creates a domain error of the given kind
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a domain error that keeps the underlying cause
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first domain error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// Sentinels for errors.Is checks
var (
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrPaymentIncomplete     = &Error{Kind: KindPaymentIncomplete}
	ErrPaymentMismatch       = &Error{Kind: KindPaymentMismatch}
	ErrAmountMismatch        = &Error{Kind: KindAmountMismatch}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrAlreadyCancelled      = &Error{Kind: KindAlreadyCancelled}
	ErrUnavailable           = &Error{Kind: KindUnavailable}
)
