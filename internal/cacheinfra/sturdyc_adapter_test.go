package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendMemory {
		t.Errorf("expected Backend to be %q, got %q", BackendMemory, cfg.Backend)
	}

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 24*time.Hour {
		t.Errorf("expected TTL to be 24 hours, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if !cfg.FallbackToMemory {
		t.Error("expected FallbackToMemory to be true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
		field     string
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "memcache" }, wantError: true, field: "Backend"},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantError: true, field: "Capacity"},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, wantError: true, field: "NumShards"},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantError: true, field: "TTL"},
		{name: "eviction over 100", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantError: true, field: "EvictionPercentage"},
		{name: "negative eviction interval", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, wantError: true, field: "EvictionInterval"},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Backend = BackendRedis
				c.Redis.Addr = ""
			},
			wantError: true,
			field:     "Redis.Addr",
		},
		{name: "redis backend is case insensitive", mutate: func(c *Config) { c.Backend = "Redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			err := cfg.Validate()
			if !tt.wantError {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
			if !strings.Contains(err.Error(), "config error in field "+tt.field) {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func newTestService(t *testing.T) (*sturdycService, *time.Time) {
	t.Helper()

	svc, err := NewSturdycService(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSturdycService() failed: %v", err)
	}

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestSturdycService_GetSet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, ok, err := svc.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	entry := Entry{Value: []byte("payload"), TTL: time.Minute}
	if err := svc.Set(ctx, "k1", entry); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok, err := svc.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Value) != "payload" {
		t.Errorf("expected payload, got %q", got.Value)
	}
	if got.StoredAt.IsZero() {
		t.Error("expected StoredAt to be stamped on Set")
	}
}

func TestSturdycService_PerEntryTTL(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "short", Entry{Value: []byte("x"), TTL: time.Minute}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	*now = now.Add(59 * time.Second)
	if _, ok, _ := svc.Get(ctx, "short"); !ok {
		t.Fatal("expected entry to be served before its TTL")
	}

	*now = now.Add(2 * time.Second)
	if _, ok, _ := svc.Get(ctx, "short"); ok {
		t.Fatal("expected entry to expire after its TTL")
	}
}

func TestSturdycService_InvalidateTag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_ = svc.Set(ctx, "a", Entry{Value: []byte("a"), TTL: time.Hour, Tags: []string{"dataset:sales", "bucket:today"}})
	_ = svc.Set(ctx, "b", Entry{Value: []byte("b"), TTL: time.Hour, Tags: []string{"dataset:sales"}})
	_ = svc.Set(ctx, "c", Entry{Value: []byte("c"), TTL: time.Hour, Tags: []string{"dataset:visits"}})

	removed, err := svc.InvalidateTag(ctx, "dataset:sales")
	if err != nil {
		t.Fatalf("InvalidateTag() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 keys removed, got %d", removed)
	}

	for _, key := range []string{"a", "b"} {
		if _, ok, _ := svc.Get(ctx, key); ok {
			t.Errorf("expected %q to be evicted", key)
		}
	}
	if _, ok, _ := svc.Get(ctx, "c"); !ok {
		t.Error("expected untagged entry to survive")
	}

	removed, _ = svc.InvalidateTag(ctx, "dataset:sales")
	if removed != 0 {
		t.Errorf("expected second invalidation to remove nothing, got %d", removed)
	}
}

func TestNewService_FallsBackToMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	svc, err := NewService(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("expected fallback, got error %v", err)
	}
	if _, ok := svc.(*sturdycService); !ok {
		t.Fatalf("expected in-memory fallback, got %T", svc)
	}

	cfg.FallbackToMemory = false
	if _, err := NewService(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without fallback")
	}
}
