package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/filters"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/schema"
)

// Request describes one report execution.
type Request struct {
	Report     string
	Range      daterange.Descriptor
	Selections map[string]string
	Allow      hierarchy.AllowList
	Limit      int
}

// Result is the rows of one report run.
type Result struct {
	Report  string           `json:"report" msgpack:"report"`
	Dataset string           `json:"dataset" msgpack:"dataset"`
	Rows    []map[string]any `json:"rows" msgpack:"rows"`
}

// Runner renders and executes reports.
type Runner struct {
	reports  *Registry
	datasets *schema.Registry
	store    filters.Querier
	logger   *slog.Logger
}

// NewRunner returns a runner. logger may be nil.
func NewRunner(reports *Registry, datasets *schema.Registry, store filters.Querier, logger *slog.Logger) (*Runner, error) {
	if reports == nil || datasets == nil || store == nil {
		return nil, errors.New("report runner requires reports, datasets and a store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		reports:  reports,
		datasets: datasets,
		store:    store,
		logger:   logger.With("component", "reports"),
	}, nil
}

// Reports exposes the definitions.
func (r *Runner) Reports() *Registry { return r.reports }

// Run executes a report scoped by the date range, the allow list and every
// active selection.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	def, ok := r.reports.Get(req.Report)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownReport, req.Report)
	}

	res, err := r.datasets.Resolve(ctx, def.Dataset)
	if err != nil {
		return Result{}, err
	}

	b, err := filters.Scope(res, r.datasets.Dialect(), req.Range, req.Allow)
	if err != nil {
		return Result{}, err
	}
	filters.ApplySelections(b, res, req.Selections, "")

	query, err := r.reports.Render(def.Name, res, b, req.Limit)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	rows, err := r.store.Query(ctx, query, b.Args()...)
	if err != nil {
		return Result{}, fmt.Errorf("report %q: %w", def.Name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	r.logger.Debug("report executed",
		"report", def.Name,
		"table", res.Table,
		"rows", len(rows),
		"duration", time.Since(started),
	)
	return Result{Report: def.Name, Dataset: def.Dataset, Rows: rows}, nil
}
