package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     NotFound("no document matching 'x'"),
			wantMsg: "not_found: no document matching 'x'",
		},
		{
			name:    "with cause",
			err:     GenerationFailure("generator call failed", errors.New("connection refused")),
			wantMsg: "generation_failure: generator call failed (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_IsMatchesType(t *testing.T) {
	wrapped := fmt.Errorf("ask: %w", InvalidArgument("question must not be empty"))

	assert.True(t, errors.Is(wrapped, ErrInvalidArgument))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrorTypeInvalidArgument, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("deadline")
	err := Cancelled("request cancelled", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := Config("chunk_overlap must be smaller than chunk_size", nil).WithDetail("chunk_size", 100)
	assert.Equal(t, 100, err.Details["chunk_size"])
}
