// Package store opens the relational store behind the reports and exposes
// the query, catalog and directory boundaries the core packages depend on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Config selects the driver and sizes the connection pool.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Schema          string        `mapstructure:"schema"`
	PoolSize        int           `mapstructure:"pool_size"`
	MaxIdle         int           `mapstructure:"max_idle"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// DefaultConfig returns a local sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:reportd.db?cache=shared",
		Schema:          "public",
		PoolSize:        10,
		MaxIdle:         5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Store wraps a bun handle. It is safe for concurrent use.
type Store struct {
	db      *bun.DB
	dialect sqlbuild.Dialect
	schema  string
	logger  *slog.Logger
}

// Open connects and pings the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := strings.ToLower(cfg.Driver)

	sqldb, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.PoolSize > 0 {
		sqldb.SetMaxOpenConns(cfg.PoolSize)
	}
	if cfg.MaxIdle > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres, DriverPgx:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb.Close()
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}

	logger.Info("database connected", "driver", driver, "pool_size", cfg.PoolSize)
	return &Store{
		db:      db,
		dialect: sqlbuild.NewDialect(driver),
		schema:  schema,
		logger:  logger.With("component", "store"),
	}, nil
}

// DB returns the bun handle.
func (s *Store) DB() *bun.DB { return s.db }

// Dialect returns the SQL dialect of the connected driver.
func (s *Store) Dialect() sqlbuild.Dialect { return s.dialect }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Query runs a parameterized statement and returns rows keyed by column
// name. Byte slices are returned as strings.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	// bun would reinterpret "?" placeholders, so generated SQL goes straight
	// to database/sql.
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

// IsUnavailable reports whether err means the store could not be reached or
// the statement referenced a missing object.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUndefinedObject) || errors.Is(err, ErrConnection)
}

// MemoryConfig returns a config for a named in-memory sqlite database that
// lives as long as the pool keeps a connection open.
func MemoryConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	cfg.PoolSize = 4
	cfg.MaxIdle = 4
	cfg.ConnMaxLifetime = 0
	return cfg
}
