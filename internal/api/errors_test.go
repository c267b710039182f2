package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "not found", err: store.ErrNotFound, expected: http.StatusNotFound},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", store.ErrNotFound), expected: http.StatusNotFound},
		{name: "validation", err: domain.ErrValidation, expected: http.StatusUnprocessableEntity},
		{name: "invalid format", err: domain.ErrInvalidFormat, expected: http.StatusUnprocessableEntity},
		{name: "invalid id", err: domain.ErrInvalidID, expected: http.StatusBadRequest},
		{name: "duplicate", err: store.ErrDuplicate, expected: http.StatusInternalServerError},
		{name: "storage unavailable", err: store.ErrStorageUnavailable, expected: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Task not found", GetSafeErrorMessage(store.ErrNotFound))
	assert.Equal(t, "Invalid task ID", GetSafeErrorMessage(domain.ErrInvalidID))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("pg: connection refused")))

	fieldErr := domain.NewValidationError("siteKey", "is required", domain.ErrValidation)
	msg := GetSafeErrorMessage(fieldErr)
	assert.Contains(t, msg, "siteKey")
	assert.Contains(t, msg, "is required")
}
