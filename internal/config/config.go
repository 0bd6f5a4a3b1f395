// Package config loads reportd settings from a YAML file, REPORTD_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/filters"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/internal/store"
	"github.com/goliatone/go-report-cache/strategy"
)

// EnvPrefix prefixes every environment override, e.g. REPORTD_SERVER_ADDR.
const EnvPrefix = "REPORTD"

// Config is the full service configuration.
type Config struct {
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Server    ServerConfig     `mapstructure:"server"`
	Database  store.Config     `mapstructure:"database"`
	Cache     cache.Config     `mapstructure:"cache"`
	Strategy  strategy.Policy  `mapstructure:"strategy"`
	Hierarchy hierarchy.Config `mapstructure:"hierarchy"`
	Filters   filters.Config   `mapstructure:"filters"`
	Reload    ReloadConfig     `mapstructure:"reload"`

	// DatasetsFile and ReportsFile replace the built-in definitions.
	DatasetsFile string `mapstructure:"datasets_file"`
	ReportsFile  string `mapstructure:"reports_file"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxLimit        int           `mapstructure:"max_limit"`
	// AdminToken protects the invalidation endpoint when set.
	AdminToken  string   `mapstructure:"admin_token"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ReloadJob evicts tags on a cron schedule, typically right after the
// nightly load of the flat tables.
type ReloadJob struct {
	Name     string   `mapstructure:"name"`
	Schedule string   `mapstructure:"schedule"`
	Tags     []string `mapstructure:"tags"`
}

// ReloadConfig lists scheduled evictions.
type ReloadConfig struct {
	Jobs []ReloadJob `mapstructure:"jobs"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 20 * time.Second,
			MaxLimit:        1000,
			RateLimit:       20,
			RateBurst:       40,
			CORSOrigins:     []string{"*"},
		},
		Database:  store.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Strategy:  strategy.DefaultPolicy(),
		Hierarchy: hierarchy.DefaultConfig(),
		Filters:   filters.DefaultConfig(),
	}
}

// Load reads path (or reportd.yaml from the working directory or
// /etc/reportd when path is empty) and applies environment overrides. A
// missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reportd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reportd")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every leaf key so environment variables can
// override values that never appear in the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("env", d.Env)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("datasets_file", d.DatasetsFile)
	v.SetDefault("reports_file", d.ReportsFile)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_limit", d.Server.MaxLimit)
	v.SetDefault("server.admin_token", d.Server.AdminToken)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.schema", d.Database.Schema)
	v.SetDefault("database.pool_size", d.Database.PoolSize)
	v.SetDefault("database.max_idle", d.Database.MaxIdle)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.query_timeout", d.Database.QueryTimeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.num_shards", d.Cache.NumShards)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.eviction_percentage", d.Cache.EvictionPercentage)
	v.SetDefault("cache.eviction_interval", d.Cache.EvictionInterval)
	v.SetDefault("cache.fallback_to_memory", d.Cache.FallbackToMemory)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.key_prefix", d.Cache.Redis.KeyPrefix)
	v.SetDefault("cache.redis.dial_timeout", d.Cache.Redis.DialTimeout)

	v.SetDefault("strategy.live_ttl", d.Strategy.Live)
	v.SetDefault("strategy.recent_ttl", d.Strategy.Recent)
	v.SetDefault("strategy.stable_ttl", d.Strategy.Stable)
	v.SetDefault("strategy.custom_ttl", d.Strategy.CustomCeiling)
	v.SetDefault("strategy.horizon_days", d.Strategy.HorizonDays)

	v.SetDefault("hierarchy.max_depth", d.Hierarchy.MaxDepth)
	v.SetDefault("hierarchy.max_size", d.Hierarchy.MaxSize)
	v.SetDefault("hierarchy.cache_ttl", d.Hierarchy.CacheTTL)
	v.SetDefault("hierarchy.cache_capacity", d.Hierarchy.CacheCapacity)
	v.SetDefault("hierarchy.admin_codes", d.Hierarchy.AdminCodes)

	v.SetDefault("filters.concurrency", d.Filters.Concurrency)
	v.SetDefault("filters.option_limit", d.Filters.OptionLimit)
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Env, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.Server),
		validation.Field(&c.Reload),
	)
	if err != nil {
		return err
	}

	sections := validation.Errors{
		"database":  validateDatabase(c.Database),
		"cache":     c.Cache.Validate(),
		"strategy":  c.Strategy.Validate(),
		"hierarchy": c.Hierarchy.Validate(),
		"filters":   c.Filters.Validate(),
	}
	if err := sections.Filter(); err != nil {
		return err
	}
	return c.validateTTLCeiling()
}

// validateTTLCeiling keeps the store from expiring entries before the
// lifetime the strategist advertises for them.
func (c Config) validateTTLCeiling() error {
	longest := max(c.Strategy.Stable, c.Strategy.CustomCeiling)
	if c.Cache.TTL > 0 && c.Cache.TTL < longest {
		return validation.Errors{
			"cache": validation.Errors{
				"ttl": fmt.Errorf("must cover strategy.stable_ttl and strategy.custom_ttl (%s)", longest),
			},
		}
	}
	return nil
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.MaxLimit, validation.Required, validation.Min(1)),
		validation.Field(&s.RateLimit, validation.Min(0.0)),
		validation.Field(&s.RateBurst, validation.When(s.RateLimit > 0, validation.Required, validation.Min(1))),
	)
}

func (r ReloadConfig) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	errs := validation.Errors{}
	for i, job := range r.Jobs {
		key := fmt.Sprintf("jobs[%d]", i)
		if len(job.Tags) == 0 {
			errs[key] = errors.New("at least one tag is required")
			continue
		}
		if _, err := parser.Parse(job.Schedule); err != nil {
			errs[key] = fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
		}
	}
	return errs.Filter()
}

func validateDatabase(d store.Config) error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(store.DriverPostgres, store.DriverPgx, store.DriverSQLite)),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.PoolSize, validation.Min(0)),
		validation.Field(&d.QueryTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// IsProduction reports whether error details must be hidden from clients.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
