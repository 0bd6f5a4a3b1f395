package filters

import (
	"strings"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/sqlbuild"
)

// Scope returns a builder holding the predicates every query on the
// dataset shares: base predicates, the date range and the allow list.
func Scope(res *schema.Resolved, dialect sqlbuild.Dialect, rng daterange.Descriptor, allow hierarchy.AllowList) (*sqlbuild.Builder, error) {
	b := sqlbuild.New(dialect)
	if err := res.ApplyBase(b); err != nil {
		return nil, err
	}
	b.DateRange(res.Expr(res.Dataset.DateColumn), rng.Start, rng.End)
	if res.Dataset.ActorColumn != "" {
		hierarchy.Apply(b, res.Expr(res.Dataset.ActorColumn), allow)
	}
	return b, nil
}

// ApplySelections adds an equality predicate for every active selection
// except the dimension named by skip.
func ApplySelections(b *sqlbuild.Builder, res *schema.Resolved, selections map[string]string, skip string) {
	for _, dim := range res.Dataset.Dimensions {
		if dim.Key == skip {
			continue
		}
		value, ok := selections[dim.Key]
		if !ok {
			continue
		}
		b.Eq(res.Expr(dim.Column), value)
	}
}

// Selections reads active selections from request parameters, keyed by
// dimension key. A dimension's own parameter wins over its aliases. Blank
// values and "all" are ignored.
func Selections(ds schema.Dataset, param func(string) string) map[string]string {
	out := map[string]string{}
	for _, dim := range ds.Dimensions {
		names := append([]string{dim.Param}, dim.Aliases...)
		for _, name := range names {
			value := strings.TrimSpace(param(name))
			if value == "" || strings.EqualFold(value, "all") {
				continue
			}
			out[dim.Key] = value
			break
		}
	}
	return out
}
