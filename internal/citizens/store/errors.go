package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"census/pkg/platform/sentinel"
)

// integrityClass is the SQLSTATE class for integrity constraint violations
// (unique, foreign key, check, not null).
const integrityClass = "23"

// classify wraps driver errors for integrity violations with
// sentinel.ErrConflict. Both supported drivers are recognized.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isIntegrityViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isIntegrityViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == integrityClass
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == integrityClass
	}
	return false
}
