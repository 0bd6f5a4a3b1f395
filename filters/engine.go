// Package filters computes cascading filter option sets: for each dimension,
// the values still reachable under every other active selection.
package filters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/sqlbuild"
)

// Querier runs a parameterized query and returns rows keyed by column alias.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Config bounds the work done per request.
type Config struct {
	Concurrency int `mapstructure:"concurrency"`
	OptionLimit int `mapstructure:"option_limit"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 4, OptionLimit: 500}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.OptionLimit, validation.Required, validation.Min(1)),
	)
}

// Option is one selectable value of a dimension.
type Option struct {
	Value     string `json:"value" msgpack:"value"`
	Label     string `json:"label" msgpack:"label"`
	Available int64  `json:"available" msgpack:"available"`
}

// Summary describes how much data the current scope covers.
type Summary struct {
	FirstDate    string `json:"firstDate,omitempty" msgpack:"first_date"`
	LastDate     string `json:"lastDate,omitempty" msgpack:"last_date"`
	DaysWithData int64  `json:"daysWithData" msgpack:"days_with_data"`
	Rows         int64  `json:"rows" msgpack:"rows"`
}

// Request describes one filter computation.
type Request struct {
	Dataset string
	Range   daterange.Descriptor
	// Selections maps dimension key to the active value.
	Selections map[string]string
	Allow      hierarchy.AllowList
}

// Result holds option lists keyed by dimension key.
type Result struct {
	Dataset    string              `json:"dataset" msgpack:"dataset"`
	Dimensions []string            `json:"dimensions" msgpack:"dimensions"`
	Options    map[string][]Option `json:"options" msgpack:"options"`
	Summary    Summary             `json:"summary" msgpack:"summary"`
}

// Engine computes cascading option sets.
type Engine struct {
	registry *schema.Registry
	store    Querier
	cfg      Config
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an engine over the registry's datasets.
func NewEngine(registry *schema.Registry, store Querier, cfg Config, opts ...EngineOption) (*Engine, error) {
	if registry == nil || store == nil {
		return nil, errors.New("filter engine requires a registry and a store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("filters config: %w", err)
	}
	e := &Engine{registry: registry, store: store, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "filters")
	return e, nil
}

// Compute returns the option list of every dimension of req.Dataset. A
// dimension whose query fails is logged and reported as empty; only schema
// errors and cancellation fail the whole request.
func (e *Engine) Compute(ctx context.Context, req Request) (Result, error) {
	res, err := e.registry.Resolve(ctx, req.Dataset)
	if err != nil {
		return Result{}, err
	}

	dialect := e.registry.Dialect()
	scope, err := Scope(res, dialect, req.Range, req.Allow)
	if err != nil {
		return Result{}, err
	}

	dims := res.Dataset.Dimensions
	lists := make([][]Option, len(dims))
	var summary Summary

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for i, dim := range dims {
		g.Go(func() error {
			lists[i] = e.dimension(ctx, res, scope, dim, req.Selections)
			return nil
		})
	}
	g.Go(func() error {
		summary = e.summary(ctx, res, scope, req.Selections)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	out := Result{
		Dataset:    req.Dataset,
		Dimensions: make([]string, len(dims)),
		Options:    make(map[string][]Option, len(dims)),
		Summary:    summary,
	}
	for i, dim := range dims {
		out.Dimensions[i] = dim.Key
		out.Options[dim.Key] = lists[i]
	}
	return out, nil
}

func (e *Engine) dimension(ctx context.Context, res *schema.Resolved, scope *sqlbuild.Builder, dim schema.Dimension, selections map[string]string) []Option {
	options := []Option{}
	selected, hasSelection := selections[dim.Key]
	if !res.Has(dim.Column) {
		if hasSelection {
			options = append(options, Option{Value: selected, Label: selected})
		}
		return options
	}

	b := scope.Clone()
	ApplySelections(b, res, selections, dim.Key)
	value := res.Expr(dim.Column)
	label := value
	if res.Has(dim.Label()) {
		label = res.Expr(dim.Label())
	}
	b.NotNull(value)

	query := fmt.Sprintf(
		"SELECT %s AS option_value, MAX(%s) AS option_label, COUNT(*) AS available FROM %s %s GROUP BY %s ORDER BY option_label, option_value LIMIT %d",
		value, label, res.TableExpr, b.Where(), value, e.cfg.OptionLimit,
	)

	started := time.Now()
	truncated := false
	rows, err := e.store.Query(ctx, query, b.Args()...)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("filter dimension failed",
				"dataset", res.Dataset.Name,
				"dimension", dim.Key,
				"error", err,
			)
		}
	} else {
		truncated = len(rows) >= e.cfg.OptionLimit
		for _, row := range rows {
			opt := Option{
				Value:     toString(row["option_value"]),
				Label:     toString(row["option_label"]),
				Available: toInt64(row["available"]),
			}
			if opt.Label == "" {
				opt.Label = opt.Value
			}
			if opt.Available > 0 {
				options = append(options, opt)
			}
		}
		e.logger.Debug("filter dimension computed",
			"dataset", res.Dataset.Name,
			"dimension", dim.Key,
			"options", len(options),
			"truncated", truncated,
			"duration", time.Since(started),
		)
	}

	if hasSelection && !containsValue(options, selected) {
		opt := Option{Value: selected, Label: selected}
		if truncated {
			opt = e.selectedOption(ctx, res, b, dim, value, label, selected)
		}
		options = append(options, opt)
	}
	return options
}

// selectedOption counts an active selection that the option limit cut off.
func (e *Engine) selectedOption(ctx context.Context, res *schema.Resolved, scope *sqlbuild.Builder, dim schema.Dimension, value, label, selected string) Option {
	opt := Option{Value: selected, Label: selected}

	b := scope.Clone()
	b.Eq(value, selected)
	query := fmt.Sprintf(
		"SELECT MAX(%s) AS option_label, COUNT(*) AS available FROM %s %s",
		label, res.TableExpr, b.Where(),
	)
	rows, err := e.store.Query(ctx, query, b.Args()...)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("filter selection count failed",
				"dataset", res.Dataset.Name,
				"dimension", dim.Key,
				"error", err,
			)
		}
		return opt
	}
	if len(rows) == 0 {
		return opt
	}
	if l := toString(rows[0]["option_label"]); l != "" {
		opt.Label = l
	}
	opt.Available = toInt64(rows[0]["available"])
	return opt
}

func (e *Engine) summary(ctx context.Context, res *schema.Resolved, scope *sqlbuild.Builder, selections map[string]string) Summary {
	b := scope.Clone()
	ApplySelections(b, res, selections, "")
	day := e.registry.Dialect().Day(res.Expr(res.Dataset.DateColumn))

	query := fmt.Sprintf(
		"SELECT MIN(%s) AS first_date, MAX(%s) AS last_date, COUNT(DISTINCT %s) AS days_with_data, COUNT(*) AS row_count FROM %s %s",
		day, day, day, res.TableExpr, b.Where(),
	)
	rows, err := e.store.Query(ctx, query, b.Args()...)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("filter summary failed", "dataset", res.Dataset.Name, "error", err)
		}
		return Summary{}
	}
	if len(rows) == 0 {
		return Summary{}
	}
	row := rows[0]
	return Summary{
		FirstDate:    toDate(row["first_date"]),
		LastDate:     toDate(row["last_date"]),
		DaysWithData: toInt64(row["days_with_data"]),
		Rows:         toInt64(row["row_count"]),
	}
}

func containsValue(options []Option, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.DateOnly)
	default:
		return fmt.Sprint(val)
	}
}

func toDate(v any) string {
	s := toString(v)
	if len(s) > len(time.DateOnly) {
		return s[:len(time.DateOnly)]
	}
	return s
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(val), 10, 64)
		return n
	}
	return 0
}
