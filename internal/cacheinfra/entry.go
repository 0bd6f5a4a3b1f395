package cacheinfra

import (
	"context"
	"time"
)

// Entry is one stored, already encoded result.
type Entry struct {
	Value    []byte        `msgpack:"v"`
	Tags     []string      `msgpack:"t"`
	StoredAt time.Time     `msgpack:"s"`
	TTL      time.Duration `msgpack:"ttl"`
}

// ExpiresAt reports the instant after which the entry must not be served.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Remaining returns the TTL left at now, never negative.
func (e Entry) Remaining(now time.Time) time.Duration {
	left := e.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Service is the behaviour shared by every backend.
type Service interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
}
