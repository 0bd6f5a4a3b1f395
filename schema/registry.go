// Package schema resolves logical datasets against the tables and columns
// that actually exist in the store.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

var (
	// ErrUnknownDataset is returned for names that were never defined.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrSchemaUnavailable means no candidate table exists. It is memoized
	// like a successful resolution.
	ErrSchemaUnavailable = errors.New("dataset unavailable")
)

// Catalog answers metadata questions about the store.
type Catalog interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]string, error)
}

type resolution struct {
	schema *Resolved
	err    error
}

// Registry owns dataset definitions and their memoized resolutions.
type Registry struct {
	catalog  Catalog
	dialect  sqlbuild.Dialect
	datasets map[string]Dataset
	memo     *xsync.MapOf[string, resolution]
	group    singleflight.Group
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry validates the definitions and returns an empty registry;
// nothing is probed until first use.
func NewRegistry(catalog Catalog, dialect sqlbuild.Dialect, datasets []Dataset, opts ...RegistryOption) (*Registry, error) {
	if catalog == nil {
		return nil, errors.New("schema registry requires a catalog")
	}
	if dialect == nil {
		return nil, errors.New("schema registry requires a dialect")
	}

	defs := make(map[string]Dataset, len(datasets))
	for _, ds := range datasets {
		if err := ds.Validate(); err != nil {
			return nil, err
		}
		if _, dup := defs[ds.Name]; dup {
			return nil, fmt.Errorf("dataset %q is defined twice", ds.Name)
		}
		defs[ds.Name] = ds
	}

	r := &Registry{
		catalog:  catalog,
		dialect:  dialect,
		datasets: defs,
		memo:     xsync.NewMapOf[string, resolution](),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "schema")
	return r, nil
}

// Dialect returns the dialect resolved expressions are quoted for.
func (r *Registry) Dialect() sqlbuild.Dialect { return r.dialect }

// Dataset returns a definition by name.
func (r *Registry) Dataset(name string) (Dataset, bool) {
	ds, ok := r.datasets[name]
	return ds, ok
}

// Datasets returns every definition sorted by name.
func (r *Registry) Datasets() []Dataset {
	out := make([]Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the memoized resolution for a dataset, probing the
// catalog on first use. Concurrent first calls share one probe. Catalog
// errors are returned but not memoized.
func (r *Registry) Resolve(ctx context.Context, name string) (*Resolved, error) {
	if res, ok := r.memo.Load(name); ok {
		return res.schema, res.err
	}

	ds, ok := r.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if res, ok := r.memo.Load(name); ok {
			return res, nil
		}
		schema, err := r.probe(ctx, ds)
		if err != nil && !errors.Is(err, ErrSchemaUnavailable) {
			return nil, err
		}
		res := resolution{schema: schema, err: err}
		r.memo.Store(name, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	res := v.(resolution)
	return res.schema, res.err
}

// Invalidate drops the memoized resolution for one dataset.
func (r *Registry) Invalidate(name string) {
	r.memo.Delete(name)
}

// InvalidateAll drops every memoized resolution.
func (r *Registry) InvalidateAll() {
	r.memo.Clear()
}

func (r *Registry) probe(ctx context.Context, ds Dataset) (*Resolved, error) {
	table := ""
	for _, candidate := range ds.Tables {
		exists, err := r.catalog.TableExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("probe table %q: %w", candidate, err)
		}
		if exists {
			table = candidate
			break
		}
	}
	if table == "" {
		r.logger.Warn("no candidate table found", "dataset", ds.Name, "candidates", ds.Tables)
		return nil, fmt.Errorf("%w: dataset %q has none of %s", ErrSchemaUnavailable, ds.Name, strings.Join(ds.Tables, ", "))
	}

	physical, err := r.catalog.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %q: %w", table, err)
	}
	byLower := make(map[string]string, len(physical))
	for _, col := range physical {
		byLower[strings.ToLower(col)] = col
	}

	resolved := &Resolved{
		Dataset:   ds,
		Table:     table,
		TableExpr: r.dialect.QuoteIdent(table),
		columns:   make(map[string]string, len(ds.Columns)),
		missing:   map[string]bool{},
	}

	for logical, spec := range ds.Columns {
		var present []string
		for _, candidate := range spec.Candidates {
			if actual, ok := byLower[strings.ToLower(candidate)]; ok {
				present = append(present, actual)
			}
		}
		expr, found := buildExpr(r.dialect, present, spec.Fallback)
		resolved.columns[logical] = expr
		if !found {
			resolved.missing[logical] = true
		}
	}

	r.logger.Info("dataset resolved",
		"dataset", ds.Name,
		"table", table,
		"fallback_columns", resolved.Missing(),
	)
	return resolved, nil
}

func sortStrings(in []string) []string {
	sort.Strings(in)
	return in
}
