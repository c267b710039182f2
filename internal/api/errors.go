package api

import (
	"errors"
	"net/http"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Validation errors on submission
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// ID collision on create is an internal fault: it should be
	// statistically impossible with UUID generation.
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat):
		// Validation errors carry field-level context safe to show.
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return validationErr.Error()
		}
		return "Invalid request"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task ID"

	case errors.Is(err, store.ErrStorageUnavailable):
		return "Storage temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}
