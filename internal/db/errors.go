package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds surfaced by the repositories. Constraint violations map
// onto distinct sentinels so callers can branch without matching on
// SQLSTATE themselves.
var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrForeignKey      = errors.New("foreign key violation")
	ErrCheckViolation  = errors.New("check constraint violation")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// wrapError converts driver errors to repository error kinds. Reads
// that miss return ErrNotFound; callers treat that as absence, not
// failure.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, ErrUniqueViolation)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, ErrForeignKey)
		case pgCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, ErrCheckViolation)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports whether err looks like a connection-level blip the
// caller may retry at the next schedule tick.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions; 57P01: admin shutdown.
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code == "57P01")
	}
	return pgconn.Timeout(err)
}
