package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-facing identifier of an error kind.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// InvalidInputError represents missing or malformed request data
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s", e.Message)
}

// UnauthorizedError represents a request without a usable identity
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// ForbiddenError represents a failed capability check
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NotFoundError represents a referenced call or machine that does not exist
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is enables errors.Is() comparison for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// InvalidStateError represents an illegal lifecycle transition
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// UnavailableError represents a transient persistence failure
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Entity Not Found Errors
var (
	ErrCallNotFound    = &NotFoundError{Entity: "call"}
	ErrMachineNotFound = &NotFoundError{Entity: "machine"}
)

// Lifecycle Errors
var (
	ErrCallNotPending = &InvalidStateError{Message: "call is no longer pending"}
)

// Helper Functions

// IsInvalidInput checks if an error is an InvalidInputError
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// IsUnauthorized checks if an error is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

// IsForbidden checks if an error is a ForbiddenError
func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidState checks if an error is an InvalidStateError
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// IsUnavailable checks if an error is an UnavailableError
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

// NewInvalidInput creates a new InvalidInputError
func NewInvalidInput(field, message string) error {
	return &InvalidInputError{Field: field, Message: message}
}

// NewUnauthorized creates a new UnauthorizedError
func NewUnauthorized(message string) error {
	return &UnauthorizedError{Message: message}
}

// NewForbidden creates a new ForbiddenError
func NewForbidden(message string) error {
	return &ForbiddenError{Message: message}
}

// NewUnavailable wraps a persistence failure of operation op
func NewUnavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// CodeOf classifies err. Unknown errors are reported as store failures.
func CodeOf(err error) Code {
	switch {
	case IsInvalidInput(err):
		return CodeInvalidInput
	case IsUnauthorized(err):
		return CodeUnauthorized
	case IsForbidden(err):
		return CodeForbidden
	case IsNotFound(err):
		return CodeNotFound
	case IsInvalidState(err):
		return CodeInvalidState
	default:
		return CodeStoreUnavailable
	}
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
