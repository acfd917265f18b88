// Package postgres contains the PostgreSQL implementations of the
// repository interfaces.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parley-chat/parley/internal/errs"
)

// PgxPool is the slice of a connection pool the stores need. It is satisfied
// by *pgxpool.Pool in production and pgxmock.PgxPoolIface in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation maps a unique constraint error onto errs.ErrConflict,
// wrapped with the violated column so the message names the field. Returns
// nil for any other error.
func uniqueViolation(err error) error {
	var pg *pgconn.PgError
	if !errors.As(err, &pg) || pg.Code != "23505" {
		return nil
	}
	switch pg.ConstraintName {
	case "users_username_key":
		return fmt.Errorf("username %w", errs.ErrConflict)
	case "users_email_key":
		return fmt.Errorf("email %w", errs.ErrConflict)
	default:
		return errs.ErrConflict
	}
}
