// Package apierrors implements the error taxonomy described in spec.md §7:
// validation, authn, authz, not_found, conflict, rate_or_lockout,
// upstream_unavailable, internal — each mapped to a fixed HTTP status.
package apierrors

import (
	"errors"
	"net/http"
)

// Type is one of the closed set of error categories handlers may return.
type Type string

// The error taxonomy from spec.md §7.
const (
	TypeValidation          Type = "validation"
	TypeAuthn               Type = "authn"
	TypeAuthz               Type = "authz"
	TypeNotFound            Type = "not_found"
	TypeConflict            Type = "conflict"
	TypeRateOrLockout       Type = "rate_or_lockout"
	TypeUpstreamUnavailable Type = "upstream_unavailable"
	TypeInternal            Type = "internal"
)

var statusByType = map[Type]int{
	TypeValidation:          http.StatusBadRequest,
	TypeAuthn:               http.StatusUnauthorized,
	TypeAuthz:               http.StatusForbidden,
	TypeNotFound:            http.StatusNotFound,
	TypeConflict:            http.StatusConflict,
	TypeRateOrLockout:       http.StatusTooManyRequests,
	TypeUpstreamUnavailable: http.StatusBadGateway,
	TypeInternal:            http.StatusInternalServerError,
}

// Error is the structured error type returned by every handler and domain
// operation in this module.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Type) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Type) + ": " + e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func NewValidationError(message string, cause error) *Error {
	return NewError(TypeValidation, message, cause)
}

func NewAuthnError(message string, cause error) *Error {
	return NewError(TypeAuthn, message, cause)
}

func NewAuthzError(message string, cause error) *Error {
	return NewError(TypeAuthz, message, cause)
}

func NewNotFoundError(message string, cause error) *Error {
	return NewError(TypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *Error {
	return NewError(TypeConflict, message, cause)
}

func NewRateOrLockoutError(message string, cause error) *Error {
	return NewError(TypeRateOrLockout, message, cause)
}

func NewUpstreamUnavailableError(message string, cause error) *Error {
	return NewError(TypeUpstreamUnavailable, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return NewError(TypeInternal, message, cause)
}

func isType(err error, t Type) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

func IsValidation(err error) bool          { return isType(err, TypeValidation) }
func IsAuthn(err error) bool               { return isType(err, TypeAuthn) }
func IsAuthz(err error) bool                { return isType(err, TypeAuthz) }
func IsNotFound(err error) bool            { return isType(err, TypeNotFound) }
func IsConflict(err error) bool            { return isType(err, TypeConflict) }
func IsRateOrLockout(err error) bool       { return isType(err, TypeRateOrLockout) }
func IsUpstreamUnavailable(err error) bool { return isType(err, TypeUpstreamUnavailable) }
func IsInternal(err error) bool            { return isType(err, TypeInternal) }

// Code maps an error to the HTTP status code spec.md §7 assigns its type.
// Errors that are not *Error are treated as internal (500).
func Code(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if code, ok := statusByType[e.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}
