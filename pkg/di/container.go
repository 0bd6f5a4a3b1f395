package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/filters"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/internal/api"
	"github.com/goliatone/go-report-cache/internal/config"
	"github.com/goliatone/go-report-cache/internal/store"
	"github.com/goliatone/go-report-cache/querycache"
	"github.com/goliatone/go-report-cache/reports"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/strategy"
)

// Container wires every component of the service from one configuration.
// Components are built once in NewContainer and shared; the getters always
// return the same instances.
type Container struct {
	config        config.Config
	logger        *slog.Logger
	store         *store.Store
	ownsStore     bool
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	strategist    *strategy.Strategist
	datasets      *schema.Registry
	resolver      *hierarchy.Resolver
	engine        *filters.Engine
	reports       *reports.Runner
	executor      *querycache.Executor
	server        *api.Server
}

// Option customizes container construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
	store  *store.Store
	clock  func() time.Time
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore uses an already open store instead of opening cfg.Database.
// The container does not close a store it did not open.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock fixes the strategist clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// NewContainer validates cfg, opens the store and the cache backend, and
// builds the resolver, engine, report runner, executor and HTTP server.
// Partially built resources are released when a later step fails.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = cfg.NewLogger(os.Stderr)
	}
	c := &Container{config: cfg, logger: logger, keySerializer: cache.NewDefaultKeySerializer()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.store = o.store
	if c.store == nil {
		if c.store, err = store.Open(ctx, cfg.Database, logger); err != nil {
			return nil, err
		}
		c.ownsStore = true
	}

	if c.cacheService, err = cache.NewCacheService(ctx, cfg.Cache, logger); err != nil {
		return nil, fmt.Errorf("cache backend: %w", err)
	}

	var strategyOpts []strategy.Option
	if o.clock != nil {
		strategyOpts = append(strategyOpts, strategy.WithClock(o.clock))
	}
	if c.strategist, err = strategy.New(cfg.Strategy, strategyOpts...); err != nil {
		return nil, err
	}

	datasetDefs := schema.DefaultDatasets()
	if cfg.DatasetsFile != "" {
		if datasetDefs, err = schema.LoadDatasets(cfg.DatasetsFile); err != nil {
			return nil, err
		}
	}
	if c.datasets, err = schema.NewRegistry(c.store.Catalog(), c.store.Dialect(), datasetDefs, schema.WithLogger(logger)); err != nil {
		return nil, err
	}

	if c.resolver, err = hierarchy.NewResolver(c.store.Directory(), cfg.Hierarchy, hierarchy.WithLogger(logger)); err != nil {
		return nil, err
	}
	if c.engine, err = filters.NewEngine(c.datasets, c.store, cfg.Filters, filters.WithLogger(logger)); err != nil {
		return nil, err
	}

	reportDefs := reports.DefaultDefinitions()
	if cfg.ReportsFile != "" {
		if reportDefs, err = reports.LoadDefinitions(cfg.ReportsFile); err != nil {
			return nil, err
		}
	}
	registry, err := reports.NewRegistry(reportDefs, c.datasets)
	if err != nil {
		return nil, err
	}
	if c.reports, err = reports.NewRunner(registry, c.datasets, c.store, logger); err != nil {
		return nil, err
	}

	c.executor = querycache.New(c.cacheService,
		querycache.WithKeySerializer(c.keySerializer),
		querycache.WithQueryTimeout(cfg.Database.QueryTimeout),
		querycache.WithLogger(logger),
	)

	c.server, err = api.NewServer(api.Config{
		MaxLimit:    cfg.Server.MaxLimit,
		AdminToken:  cfg.Server.AdminToken,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		CORSOrigins: cfg.Server.CORSOrigins,
		Production:  cfg.IsProduction(),
	}, api.Deps{
		Strategist: c.strategist,
		Datasets:   c.datasets,
		Resolver:   c.resolver,
		Filters:    c.engine,
		Reports:    c.reports,
		Executor:   c.executor,
		Health:     c.store.Ping,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default().
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

// Invalidate evicts every cache entry filed under tags and forgets the
// schema resolutions, so reloaded tables are probed again.
func (c *Container) Invalidate(ctx context.Context, tags ...string) (int, error) {
	c.datasets.InvalidateAll()
	return c.executor.InvalidateTag(ctx, tags...)
}

// Close releases the cache backend and the store when the container opened it.
func (c *Container) Close() error {
	var errs []error
	if closer, ok := c.cacheService.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if c.store != nil && c.ownsStore {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

func (c *Container) Config() config.Config              { return c.config }
func (c *Container) Logger() *slog.Logger               { return c.logger }
func (c *Container) Store() *store.Store                { return c.store }
func (c *Container) CacheService() cache.CacheService   { return c.cacheService }
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }
func (c *Container) Strategist() *strategy.Strategist   { return c.strategist }
func (c *Container) Datasets() *schema.Registry         { return c.datasets }
func (c *Container) Resolver() *hierarchy.Resolver      { return c.resolver }
func (c *Container) Filters() *filters.Engine           { return c.engine }
func (c *Container) Reports() *reports.Runner           { return c.reports }
func (c *Container) Executor() *querycache.Executor     { return c.executor }
func (c *Container) Server() *api.Server                { return c.server }
