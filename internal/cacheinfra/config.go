package cacheinfra

import (
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the configuration for the cache backends.
type Config struct {
	// Backend selects the store: "memory" (sturdyc, per process) or "redis"
	// (shared across replicas).
	Backend string

	// Capacity defines the maximum number of entries the in-memory store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the ceiling for any entry. Entries carry their own, shorter TTL;
	// the in-memory client drops everything older than this regardless.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration

	// FallbackToMemory makes a redis backend that cannot be reached at
	// start-up degrade to the in-memory store instead of failing.
	FallbackToMemory bool

	Redis RedisConfig
}

// RedisConfig configures the shared redis backend.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMemory,
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
		FallbackToMemory:   true,
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			KeyPrefix:   "reportcache:",
			DialTimeout: 2 * time.Second,
		},
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendMemory, BackendRedis:
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of memory, redis"}
	}

	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	if strings.EqualFold(c.Backend, BackendRedis) {
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "Redis.Addr", Message: "is required for the redis backend"}
		}
		if c.Redis.DB < 0 {
			return &ConfigError{Field: "Redis.DB", Message: "must be non-negative"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
