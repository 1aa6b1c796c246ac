package apierrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("bad input", nil), http.StatusBadRequest},
		{"authn", NewAuthnError("no credentials", nil), http.StatusUnauthorized},
		{"authz", NewAuthzError("forbidden", nil), http.StatusForbidden},
		{"not_found", NewNotFoundError("missing", nil), http.StatusNotFound},
		{"conflict", NewConflictError("conflict", nil), http.StatusConflict},
		{"rate_or_lockout", NewRateOrLockoutError("locked out", nil), http.StatusTooManyRequests},
		{"upstream_unavailable", NewUpstreamUnavailableError("down", nil), http.StatusBadGateway},
		{"internal", NewInternalError("boom", nil), http.StatusInternalServerError},
		{"plain error defaults to internal", errors.New("unstructured"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestError_ErrorString(t *testing.T) {
	t.Parallel()

	withoutCause := NewValidationError("bad input", nil)
	assert.Equal(t, "validation: bad input", withoutCause.Error())

	cause := errors.New("underlying")
	withCause := NewInternalError("boom", cause)
	assert.Equal(t, "internal: boom: underlying", withCause.Error())
	assert.ErrorIs(t, withCause, cause)
}

func TestIsHelpers(t *testing.T) {
	t.Parallel()

	err := NewConflictError("already exists", nil)
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsNotFound(err))

	wrapped := errors.New("wrapped: " + err.Error())
	assert.False(t, IsConflict(wrapped), "a plain error never matches a Type, wrapped text or not")
}

func TestNewError_PreservesType(t *testing.T) {
	t.Parallel()
	err := NewError(TypeRateOrLockout, "too many attempts", nil)
	assert.True(t, IsRateOrLockout(err))
	assert.Equal(t, TypeRateOrLockout, err.Type)
}
