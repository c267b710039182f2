package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solvenet/recaptcha-api/internal/store"
)

// PostgreSQL error codes
const (
	// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
	uniqueViolationCode = "23505"

	// notNullViolationCode is the PostgreSQL error code for not null violations
	notNullViolationCode = "23502"

	// connectionFailureClass is the leading class of PostgreSQL connection errors
	connectionFailureClass = "08"
)

// MapError maps a database error to the appropriate store sentinel.
// It wraps the original error to preserve context for debugging. Every
// database operation in this package routes its errors through here so
// callers only ever match on store sentinels.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolationCode:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case pgErr.Code == notNullViolationCode:
			return fmt.Errorf("%w: not null violation (%s): %v", store.ErrInvalidEntity, pgErr.ColumnName, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == connectionFailureClass:
			return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	return err
}

// CheckRowsAffected examines the number of rows affected by a write.
// Zero affected rows on an UPDATE or DELETE means the target record does
// not exist, reported as store.ErrNotFound.
func CheckRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}
