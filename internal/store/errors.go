package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tokens.hh/internal/ledger"
)

const (
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeForeignKeyViolation = "23503"
	codeRaiseException      = "P0001"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// entryError translates a rejected ledger insert. Every constraint on
// ledger_entries encodes an invariant, so a violation there is never a
// client mistake.
func entryError(subject ledger.Subject, err error) error {
	switch pgCode(err) {
	case codeUniqueViolation, codeCheckViolation, codeRaiseException:
		var pgErr *pgconn.PgError
		errors.As(err, &pgErr)
		return &ledger.InvariantViolationError{Subject: subject, Detail: pgErr.Message}
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", ledger.ErrSubjectNotFound, subject)
	}
	return err
}

// rowError maps a missing row to notFound and a duplicate key to
// ErrAlreadyExists.
func rowError(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return notFound
	case isUniqueViolation(err):
		return ledger.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return ledger.ErrSubjectNotFound
	case pgCode(err) == codeCheckViolation:
		var pgErr *pgconn.PgError
		errors.As(err, &pgErr)
		return &ledger.InvariantViolationError{Detail: pgErr.ConstraintName + ": " + pgErr.Message}
	}
	return err
}
