package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
)

// classify maps driver errors onto the application's error kinds. what
// names the failed step and ends up in the detail.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, err, "%s", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return apperr.Wrap(apperr.KindConcurrentModification, err, "%s", what)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.KindNotFound, err, "%s: referenced row does not exist", what)
		case codeCheckViolation:
			return apperr.Wrap(apperr.KindInvalidAdjustment, err, "%s: constraint %s", what, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func staleVersion(what string, version int64) error {
	return apperr.New(apperr.KindConcurrentModification, "%s: version %d is stale", what, version)
}
