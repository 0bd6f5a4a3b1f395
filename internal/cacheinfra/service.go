package cacheinfra

import (
	"context"
	"log/slog"
	"strings"
)

// NewService builds the backend selected by cfg.Backend. A redis backend
// that cannot be reached degrades to the in-memory store when
// cfg.FallbackToMemory is set.
func NewService(ctx context.Context, cfg Config, logger *slog.Logger) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !strings.EqualFold(cfg.Backend, BackendRedis) {
		return newMemory(cfg)
	}

	svc, err := NewRedisService(ctx, cfg)
	if err == nil {
		logger.Info("cache backend ready", "backend", BackendRedis, "addr", cfg.Redis.Addr)
		return svc, nil
	}
	if !cfg.FallbackToMemory {
		return nil, err
	}

	logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.Redis.Addr, "error", err)
	mem := cfg
	mem.Backend = BackendMemory
	return newMemory(mem)
}

func newMemory(cfg Config) (Service, error) {
	svc, err := NewSturdycService(cfg)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
