package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
)

// SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// storeErr classifies a pgx error into an apperrors.StoreError. Unique
// violations wrap ErrConflict, missing rows wrap ErrNotFound, and
// serialization, deadlock and connection failures are retryable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	se := &apperrors.StoreError{Store: apperrors.StoreRelational, Op: op, Err: err}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		se.Err = fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == pgUniqueViolation:
			se.Err = fmt.Errorf("%w: %s: %w", apperrors.ErrConflict, pgErr.ConstraintName, err)
		case pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections,
			pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgCannotConnectNow,
			strings.HasPrefix(pgErr.Code, "08"):
			se.Retryable = true
		}
	case errors.Is(err, context.DeadlineExceeded):
		se.Retryable = true
	case pgconn.Timeout(err), pgconn.SafeToRetry(err):
		se.Retryable = true
	}
	return se
}

// notFound builds the error returned when an UPDATE or DELETE matched no row.
func notFound(op, what string) error {
	return &apperrors.StoreError{
		Store: apperrors.StoreRelational,
		Op:    op,
		Err:   fmt.Errorf("%s: %w", what, apperrors.ErrNotFound),
	}
}

// likePattern wraps s for a case-insensitive substring match, escaping the
// LIKE metacharacters it contains.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// whereBuilder accumulates numbered predicates for dynamic filters.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
