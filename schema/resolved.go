package schema

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

// Resolved is a dataset bound to the physical schema found in the store.
// Call sites use logical names only; Expr maps them to SQL.
type Resolved struct {
	Dataset Dataset
	// Table is the physical table name chosen.
	Table string
	// TableExpr is Table quoted for the dialect.
	TableExpr string
	columns   map[string]string
	missing   map[string]bool
}

// Expr returns the SQL expression for a logical column. Unknown names
// resolve to NULL so a typo can never reach a physical column.
func (r *Resolved) Expr(logical string) string {
	if expr, ok := r.columns[logical]; ok {
		return expr
	}
	return "NULL"
}

// Has reports whether at least one candidate for the logical column exists.
func (r *Resolved) Has(logical string) bool {
	_, ok := r.columns[logical]
	return ok && !r.missing[logical]
}

// Columns returns a copy of the logical -> expression map.
func (r *Resolved) Columns() map[string]string {
	out := make(map[string]string, len(r.columns))
	for k, v := range r.columns {
		out[k] = v
	}
	return out
}

// Missing lists logical columns that fell back to a constant.
func (r *Resolved) Missing() []string {
	out := make([]string, 0, len(r.missing))
	for name := range r.missing {
		out = append(out, name)
	}
	return sortStrings(out)
}

// ApplyBase adds the dataset's mandatory predicates to b. Predicates on
// columns absent from the chosen table are skipped.
func (r *Resolved) ApplyBase(b *sqlbuild.Builder) error {
	for _, p := range r.Dataset.BasePredicates {
		if !r.Has(p.Column) {
			continue
		}
		expr := r.Expr(p.Column)
		if p.Upper {
			expr = "UPPER(" + expr + ")"
		}
		if err := b.Apply(expr, p.Op, p.Value); err != nil {
			return fmt.Errorf("dataset %q base predicate on %q: %w", r.Dataset.Name, p.Column, err)
		}
	}
	return nil
}

// buildExpr turns the surviving candidates into one expression.
func buildExpr(d sqlbuild.Dialect, present []string, fallback string) (string, bool) {
	switch len(present) {
	case 0:
		if fallback == "" {
			fallback = "NULL"
		}
		return fallback, false
	case 1:
		return d.QuoteIdent(present[0]), true
	}

	quoted := make([]string, len(present))
	for i, name := range present {
		quoted[i] = d.QuoteIdent(name)
	}
	return "COALESCE(" + strings.Join(quoted, ", ") + ")", true
}
