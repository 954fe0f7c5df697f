package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// MapError converts retryable Postgres failures into shared.ErrConflict. Errors
// already carrying a domain kind pass through untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: duplicate %s (%s)", shared.ErrConflict, pgErr.ConstraintName, pgErr.Detail)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: concurrent update, retry: %s", shared.ErrConflict, pgErr.Message)
	}
	return err
}

// NotFound maps pgx.ErrNoRows to a typed not-found error for entity/id.
func NotFound(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &shared.NotFoundError{Entity: entity, ID: id}
	}
	return err
}
