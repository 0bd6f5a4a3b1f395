package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fallbacks are emitted verbatim, so they are limited to typed constants.
var fallbackPattern = regexp.MustCompile(`^(NULL|NULL::[a-z]+|-?[0-9]+(\.[0-9]+)?|'')$`)

// ColumnSpec lists physical candidates for one logical column.
type ColumnSpec struct {
	Candidates []string `yaml:"candidates" json:"candidates"`
	// Fallback is the constant used when no candidate exists. Empty means NULL.
	Fallback string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Predicate is a mandatory filter applied to every query on a dataset.
type Predicate struct {
	Column string      `yaml:"column" json:"column"`
	Op     sqlbuild.Op `yaml:"op" json:"op"`
	Value  any         `yaml:"value,omitempty" json:"value,omitempty"`
	// Upper compares UPPER(column) instead of the column.
	Upper bool `yaml:"upper,omitempty" json:"upper,omitempty"`
}

// Dimension is one cascading filter facet.
type Dimension struct {
	// Key names the option list in filter responses.
	Key string `yaml:"key" json:"key"`
	// Param is the request parameter carrying the active selection.
	Param string `yaml:"param" json:"param"`
	// Aliases are older parameter names accepted for Param.
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Column      string   `yaml:"column" json:"column"`
	LabelColumn string   `yaml:"label_column,omitempty" json:"label_column,omitempty"`
}

// Label returns the logical label column, defaulting to the value column.
func (d Dimension) Label() string {
	if d.LabelColumn != "" {
		return d.LabelColumn
	}
	return d.Column
}

// Dataset is a logical read surface over one of several candidate tables.
type Dataset struct {
	Name string `yaml:"name" json:"name"`
	// Tables in priority order; the first that exists wins.
	Tables         []string              `yaml:"tables" json:"tables"`
	Columns        map[string]ColumnSpec `yaml:"columns" json:"columns"`
	DateColumn     string                `yaml:"date_column" json:"date_column"`
	ActorColumn    string                `yaml:"actor_column,omitempty" json:"actor_column,omitempty"`
	BasePredicates []Predicate           `yaml:"base_predicates,omitempty" json:"base_predicates,omitempty"`
	Dimensions     []Dimension           `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// Dimension looks up a dimension by key.
func (d Dataset) Dimension(key string) (Dimension, bool) {
	for _, dim := range d.Dimensions {
		if dim.Key == key {
			return dim, true
		}
	}
	return Dimension{}, false
}

// Validate checks that every identifier is safe to interpolate and every
// logical reference is defined.
func (d Dataset) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(d.Name) == "" {
		add("name is required")
	}
	if len(d.Tables) == 0 {
		add("at least one candidate table is required")
	}
	for _, table := range d.Tables {
		if !identPattern.MatchString(table) {
			add("table %q is not a valid identifier", table)
		}
	}

	for logical, spec := range d.Columns {
		if !identPattern.MatchString(logical) {
			add("logical column %q is not a valid identifier", logical)
		}
		for _, candidate := range spec.Candidates {
			if !identPattern.MatchString(candidate) {
				add("column %q candidate %q is not a valid identifier", logical, candidate)
			}
		}
		if spec.Fallback != "" && !fallbackPattern.MatchString(spec.Fallback) {
			add("column %q fallback %q is not an allowed constant", logical, spec.Fallback)
		}
	}

	requireColumn := func(role, logical string) {
		if _, ok := d.Columns[logical]; !ok {
			add("%s %q is not a defined column", role, logical)
		}
	}

	if d.DateColumn == "" {
		add("date_column is required")
	} else {
		requireColumn("date_column", d.DateColumn)
	}
	if d.ActorColumn != "" {
		requireColumn("actor_column", d.ActorColumn)
	}

	for i, p := range d.BasePredicates {
		requireColumn(fmt.Sprintf("base_predicates[%d]", i), p.Column)
		if !sqlbuild.ValidOp(p.Op) {
			add("base_predicates[%d] has unknown op %q", i, p.Op)
		}
	}

	seen := map[string]bool{}
	for i, dim := range d.Dimensions {
		if dim.Key == "" || dim.Param == "" {
			add("dimensions[%d] needs key and param", i)
		}
		if seen[dim.Key] {
			add("dimension %q is defined twice", dim.Key)
		}
		seen[dim.Key] = true
		requireColumn(fmt.Sprintf("dimension %q", dim.Key), dim.Column)
		if dim.LabelColumn != "" {
			requireColumn(fmt.Sprintf("dimension %q label", dim.Key), dim.LabelColumn)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("dataset %q: %w", d.Name, errors.Join(errs...))
}
