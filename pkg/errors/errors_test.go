package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("patient", nil), http.StatusNotFound},
		{BadRequest("bad", nil), http.StatusBadRequest},
		{Invalid(FieldError{Field: "name", Message: "required"}), http.StatusBadRequest},
		{Unauthorized("", nil), http.StatusUnauthorized},
		{Forbidden(""), http.StatusForbidden},
		{Conflict("duplicate", nil), http.StatusConflict},
		{Internal(stderrors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.StatusCode(), tt.err.Message)
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	cause := stderrors.New("no rows")
	wrapped := fmt.Errorf("failed to get patient: %w", NotFound("patient", cause))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "patient not found", appErr.Message)
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.True(t, IsCode(wrapped, ErrNotFound))
	assert.False(t, IsCode(stderrors.New("plain"), ErrNotFound))
	assert.Equal(t, "patient not found: no rows", appErr.Error())
}
