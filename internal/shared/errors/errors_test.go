package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_WrappedLookup(t *testing.T) {
	base := NewUnavailableError("payment provider unreachable", "timeout")
	wrapped := fmt.Errorf("create charge: %w", base)

	assert.True(t, IsUnavailableError(wrapped))
	assert.False(t, IsValidationError(wrapped))
	assert.Equal(t, ErrorTypeUnavailable, TypeOf(wrapped))
	assert.Equal(t, "unavailable: payment provider unreachable (timeout)", base.Error())
	assert.True(t, errors.Is(wrapped, &AppError{Type: ErrorTypeUnavailable}))
	assert.False(t, errors.Is(wrapped, &AppError{Type: ErrorTypeForbidden}))
}

func TestTypeOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("boom")))
	assert.Nil(t, GetAppError(errors.New("boom")))
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql", errors.New("Error 1062: Duplicate entry '1-germany' for key"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: entitlement_resources.region"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateError(tt.err))
		})
	}
}
