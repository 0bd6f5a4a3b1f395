package sqlbuild

import (
	"fmt"
	"strings"
	"time"
)

// Op names a comparison usable in dataset base predicates.
type Op string

const (
	OpEq      Op = "eq"
	OpNotEq   Op = "neq"
	OpLike    Op = "like"
	OpNotLike Op = "not_like"
	OpNotNull Op = "not_null"
	OpIn      Op = "in"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
)

var comparisons = map[Op]string{
	OpEq:      "=",
	OpNotEq:   "<>",
	OpLike:    "LIKE",
	OpNotLike: "NOT LIKE",
	OpGt:      ">",
	OpGte:     ">=",
	OpLt:      "<",
	OpLte:     "<=",
}

// ValidOp reports whether op is known to Apply.
func ValidOp(op Op) bool {
	if op == OpNotNull || op == OpIn {
		return true
	}
	_, ok := comparisons[op]
	return ok
}

// Builder accumulates AND-combined predicates. Every method that takes a
// value binds it in the same call that writes its placeholder, so SQL text
// never contains caller data.
type Builder struct {
	dialect Dialect
	args    []any
	clauses []string
}

// New returns an empty builder for d.
func New(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Bind appends v and returns its placeholder.
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *Builder) compare(expr, operator string, v any) *Builder {
	b.clauses = append(b.clauses, fmt.Sprintf("%s %s %s", expr, operator, b.Bind(v)))
	return b
}

func (b *Builder) Eq(expr string, v any) *Builder      { return b.compare(expr, "=", v) }
func (b *Builder) NotEq(expr string, v any) *Builder   { return b.compare(expr, "<>", v) }
func (b *Builder) Like(expr string, v any) *Builder    { return b.compare(expr, "LIKE", v) }
func (b *Builder) NotLike(expr string, v any) *Builder { return b.compare(expr, "NOT LIKE", v) }

// NotNull adds "expr IS NOT NULL".
func (b *Builder) NotNull(expr string) *Builder {
	b.clauses = append(b.clauses, expr+" IS NOT NULL")
	return b
}

// In adds "expr IN (...)". An empty list matches nothing.
func (b *Builder) In(expr string, values []string) *Builder {
	if len(values) == 0 {
		b.clauses = append(b.clauses, "1 = 0")
		return b
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = b.Bind(v)
	}
	b.clauses = append(b.clauses, fmt.Sprintf("%s IN (%s)", expr, strings.Join(phs, ", ")))
	return b
}

// DateRange adds an inclusive calendar range on expr, written as
// start <= expr < end+1 day so timestamp columns include the whole last day.
func (b *Builder) DateRange(expr string, start, end time.Time) *Builder {
	next := end.AddDate(0, 0, 1)
	lo := b.Bind(b.dialect.DateArg(start))
	hi := b.Bind(b.dialect.DateArg(next))
	b.clauses = append(b.clauses, fmt.Sprintf("%s >= %s AND %s < %s", expr, lo, expr, hi))
	return b
}

// Apply adds a predicate by operator name.
func (b *Builder) Apply(expr string, op Op, value any) error {
	switch op {
	case OpNotNull:
		b.NotNull(expr)
		return nil
	case OpIn:
		values, ok := toStrings(value)
		if !ok {
			return fmt.Errorf("operator %q needs a list of strings, got %T", op, value)
		}
		b.In(expr, values)
		return nil
	}

	operator, ok := comparisons[op]
	if !ok {
		return fmt.Errorf("unknown operator %q", op)
	}
	b.compare(expr, operator, value)
	return nil
}

// Clause adds SQL that carries no values.
func (b *Builder) Clause(sql string) *Builder {
	b.clauses = append(b.clauses, sql)
	return b
}

// Len returns the number of predicates.
func (b *Builder) Len() int { return len(b.clauses) }

// Conditions returns the predicates joined with AND, or "1 = 1" when empty.
func (b *Builder) Conditions() string {
	if len(b.clauses) == 0 {
		return "1 = 1"
	}
	return strings.Join(b.clauses, " AND ")
}

// Where returns "WHERE ..." or an empty string when there are no predicates.
func (b *Builder) Where() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.clauses, " AND ")
}

// Args returns a copy of the bound values in placeholder order.
func (b *Builder) Args() []any {
	return append([]any(nil), b.args...)
}

// Clone returns an independent builder with the same predicates and values.
func (b *Builder) Clone() *Builder {
	return &Builder{
		dialect: b.dialect,
		args:    append([]any(nil), b.args...),
		clauses: append([]string(nil), b.clauses...),
	}
}

func toStrings(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
