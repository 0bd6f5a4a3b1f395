package sqlbuild

import (
	"fmt"
	"strings"
	"time"
)

// Dialect covers the few places where generated SQL differs between stores.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// QuoteIdent quotes a table or column name that was already validated.
	QuoteIdent(name string) string

	// DateArg converts a calendar date into the value bound for date comparisons.
	DateArg(t time.Time) any

	// Day truncates a date or timestamp expression to its calendar day.
	Day(expr string) string
}

// NewDialect returns the dialect for a driver or dialect name. Unknown names
// default to postgres.
func NewDialect(name string) Dialect {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}
	default:
		return Postgres{}
	}
}

// Postgres renders $n placeholders and binds dates as time values.
type Postgres struct{}

func (Postgres) Name() string                  { return "postgres" }
func (Postgres) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (Postgres) QuoteIdent(name string) string { return quoteIdent(name) }
func (Postgres) Day(expr string) string       { return "CAST(" + expr + " AS DATE)" }
func (Postgres) DateArg(t time.Time) any {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SQLite renders ?n placeholders and binds dates as ISO strings, matching
// how dates are stored in text columns.
type SQLite struct{}

func (SQLite) Name() string                  { return "sqlite" }
func (SQLite) Placeholder(index int) string  { return fmt.Sprintf("?%d", index) }
func (SQLite) QuoteIdent(name string) string { return quoteIdent(name) }
func (SQLite) DateArg(t time.Time) any       { return t.Format(time.DateOnly) }
func (SQLite) Day(expr string) string        { return "date(" + expr + ")" }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
