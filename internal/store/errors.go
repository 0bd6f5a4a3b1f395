package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUndefinedObject means a table or column referenced by a query does
	// not exist, usually after a schema change.
	ErrUndefinedObject = errors.New("undefined table or column")
	// ErrQueryCanceled means the server cancelled the statement.
	ErrQueryCanceled = errors.New("query canceled")
	// ErrConnection covers lost or refused connections.
	ErrConnection = errors.New("database connection failed")
)

// postgres SQLSTATE codes
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
	codeQueryCanceled   = "57014"
	classConnection     = "08"
)

// classify tags driver errors with a package sentinel while keeping the
// original in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var code string
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &liteErr):
		if liteErr.Code == sqlite3.ErrError && isMissingObject(liteErr.Error()) {
			return fmt.Errorf("%w: %w", ErrUndefinedObject, err)
		}
		return err
	default:
		return err
	}

	switch {
	case code == codeUndefinedTable || code == codeUndefinedColumn:
		return fmt.Errorf("%w: %w", ErrUndefinedObject, err)
	case code == codeQueryCanceled:
		return fmt.Errorf("%w: %w", ErrQueryCanceled, err)
	case len(code) == 5 && code[:2] == classConnection:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

func isMissingObject(msg string) bool {
	for _, prefix := range []string{"no such table", "no such column"} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
