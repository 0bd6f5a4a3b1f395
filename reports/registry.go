// Package reports holds the opaque report queries. Each report is a SQL
// template over one dataset; the runner supplies the resolved table, column
// expressions and the parameterized WHERE clause.
package reports

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/sqlbuild"
)

// ErrUnknownReport is returned for report names that were never defined.
var ErrUnknownReport = errors.New("unknown report")

// Definition is one report template.
//
// The template sees {{.Table}}, {{.Where}} and {{.Limit}} and the functions
// col (logical column to SQL expression) and day (truncate to a date).
type Definition struct {
	Name         string `yaml:"name" json:"name"`
	Dataset      string `yaml:"dataset" json:"dataset"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	SQL          string `yaml:"sql" json:"-"`
	DefaultLimit int    `yaml:"default_limit,omitempty" json:"default_limit,omitempty"`
}

type compiled struct {
	def  Definition
	tmpl *template.Template
}

// Registry is an immutable set of compiled report templates.
type Registry struct {
	reports map[string]compiled
}

// templateData is what report templates render against.
type templateData struct {
	Table string
	Where string
	Limit int
}

// NewRegistry compiles defs. Every dataset named must exist in datasets.
func NewRegistry(defs []Definition, datasets *schema.Registry) (*Registry, error) {
	r := &Registry{reports: make(map[string]compiled, len(defs))}
	for _, def := range defs {
		if def.Name == "" || def.Dataset == "" || strings.TrimSpace(def.SQL) == "" {
			return nil, fmt.Errorf("report %q needs name, dataset and sql", def.Name)
		}
		if _, dup := r.reports[def.Name]; dup {
			return nil, fmt.Errorf("report %q is defined twice", def.Name)
		}
		if datasets != nil {
			if _, ok := datasets.Dataset(def.Dataset); !ok {
				return nil, fmt.Errorf("report %q: %w: %q", def.Name, schema.ErrUnknownDataset, def.Dataset)
			}
		}
		if def.DefaultLimit <= 0 {
			def.DefaultLimit = 100
		}

		tmpl, err := template.New(def.Name).
			Option("missingkey=error").
			Funcs(renderFuncs(nil, nil)).
			Parse(def.SQL)
		if err != nil {
			return nil, fmt.Errorf("report %q: parse sql: %w", def.Name, err)
		}
		r.reports[def.Name] = compiled{def: def, tmpl: tmpl}
	}
	return r, nil
}

// Get returns a report definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	c, ok := r.reports[name]
	return c.def, ok
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.reports))
	for _, c := range r.reports {
		out = append(out, c.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Render produces the SQL of a report for a resolved dataset and a builder
// carrying its predicates. Values stay in the builder's args.
func (r *Registry) Render(name string, res *schema.Resolved, b *sqlbuild.Builder, limit int) (string, error) {
	c, ok := r.reports[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	if limit <= 0 {
		limit = c.def.DefaultLimit
	}

	tmpl, err := c.tmpl.Clone()
	if err != nil {
		return "", err
	}
	tmpl.Funcs(renderFuncs(res, b.Dialect()))

	var sql strings.Builder
	err = tmpl.Execute(&sql, templateData{
		Table: res.TableExpr,
		Where: b.Where(),
		Limit: limit,
	})
	if err != nil {
		return "", fmt.Errorf("render report %q: %w", name, err)
	}
	return strings.Join(strings.Fields(sql.String()), " "), nil
}

func renderFuncs(res *schema.Resolved, dialect sqlbuild.Dialect) template.FuncMap {
	return template.FuncMap{
		"col": func(logical string) string {
			if res == nil {
				return "NULL"
			}
			return res.Expr(logical)
		},
		"day": func(expr string) string {
			if dialect == nil {
				return expr
			}
			return dialect.Day(expr)
		},
	}
}

type definitionFile struct {
	Reports []Definition `yaml:"reports"`
}

// LoadDefinitions reads report definitions from a YAML file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reports file: %w", err)
	}
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	if len(file.Reports) == 0 {
		return nil, errors.New("decode reports: no reports defined")
	}
	return file.Reports, nil
}
