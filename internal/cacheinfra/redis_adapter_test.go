package cacheinfra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs against a live redis only when REDIS_ADDR is set.
func newRedisTestService(t *testing.T) *redisService {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Backend = BackendRedis
	cfg.Redis.Addr = addr
	cfg.Redis.KeyPrefix = "reportcache-test:" + uuid.NewString() + ":"

	svc, err := NewRedisService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRedisService() failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestRedisService_RoundTripAndTags(t *testing.T) {
	svc := newRedisTestService(t)
	ctx := context.Background()

	entry := Entry{Value: []byte("rows"), TTL: time.Minute, Tags: []string{"dataset:sales"}}
	if err := svc.Set(ctx, "k1", entry); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok, err := svc.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Value) != "rows" || got.TTL != time.Minute {
		t.Errorf("unexpected entry %+v", got)
	}

	removed, err := svc.InvalidateTag(ctx, "dataset:sales")
	if err != nil {
		t.Fatalf("InvalidateTag() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok, _ := svc.Get(ctx, "k1"); ok {
		t.Error("expected entry to be gone after tag invalidation")
	}
}
