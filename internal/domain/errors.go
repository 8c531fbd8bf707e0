package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeResourceInactive    ErrorCode = "RESOURCE_INACTIVE"
	CodeSlotUnavailable     ErrorCode = "SLOT_UNAVAILABLE"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodePaymentNotConfirmed ErrorCode = "PAYMENT_NOT_CONFIRMED"
	CodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	CodeTokenAlreadyUsed    ErrorCode = "TOKEN_ALREADY_USED"
)

// ErrorCategory groups codes by how a caller is expected to react.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryState      ErrorCategory = "state"
	CategoryIntegrity  ErrorCategory = "integrity"
	CategoryInternal   ErrorCategory = "internal"
)

// Error is the error type returned across the engine boundary.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so that errors.Is(err, ErrSlotUnavailable) holds for any
// message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrResourceInactive    = &Error{Code: CodeResourceInactive}
	ErrSlotUnavailable     = &Error{Code: CodeSlotUnavailable}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition}
	ErrPaymentNotConfirmed = &Error{Code: CodePaymentNotConfirmed}
	ErrInvalidToken        = &Error{Code: CodeInvalidToken}
	ErrTokenAlreadyUsed    = &Error{Code: CodeTokenAlreadyUsed}
)

// CodeOf returns the code carried by err, or "" for errors from outside the engine.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func CategoryOf(err error) ErrorCategory {
	switch CodeOf(err) {
	case CodeValidation, CodeNotFound, CodeResourceInactive, CodeInvalidToken:
		return CategoryValidation
	case CodeSlotUnavailable:
		return CategoryConflict
	case CodeInvalidTransition, CodePaymentNotConfirmed:
		return CategoryState
	case CodeTokenAlreadyUsed:
		return CategoryIntegrity
	default:
		return CategoryInternal
	}
}
