// Package querycache runs report and filter queries through the shared
// cache: hits are served from the store, misses execute once per key across
// concurrent callers and are stored with the TTL and tags chosen by the
// strategist.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-report-cache/cache"
)

// ErrKeyRequired is returned when a request has no cache key.
var ErrKeyRequired = errors.New("cache key is required")

// DefaultQueryTimeout bounds a shared computation when none is configured.
const DefaultQueryTimeout = 30 * time.Second

// Request describes one cacheable computation.
type Request struct {
	Key  string
	TTL  time.Duration
	Tags []string
}

// Result is the value plus where it came from. TTL is the remaining
// lifetime for hits and the full lifetime for fresh values.
type Result[T any] struct {
	Value  T
	Cached bool
	TTL    time.Duration
}

// Executor is safe for concurrent use.
type Executor struct {
	cache      cache.CacheService
	codec      cache.Codec
	serializer cache.KeySerializer
	timeout    time.Duration
	logger     *slog.Logger
	group      singleflight.Group
	// epoch advances on every invalidation so computations that started
	// before it do not write their results back.
	epoch atomic.Uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithCodec replaces the msgpack codec.
func WithCodec(codec cache.Codec) Option {
	return func(e *Executor) {
		if codec != nil {
			e.codec = codec
		}
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(serializer cache.KeySerializer) Option {
	return func(e *Executor) {
		if serializer != nil {
			e.serializer = serializer
		}
	}
}

// WithQueryTimeout bounds each shared computation.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an executor backed by svc.
func New(svc cache.CacheService, opts ...Option) *Executor {
	e := &Executor{
		cache:      svc,
		codec:      cache.NewMsgpackCodec(),
		serializer: cache.NewDefaultKeySerializer(),
		timeout:    DefaultQueryTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "querycache")
	return e
}

// Execute returns the cached value for req.Key or runs fn to produce it.
//
// Concurrent misses on one key share a single fn call. That call runs on a
// context detached from any one caller and bounded by the query timeout, so
// a caller that goes away only abandons its own wait. Errors from fn are
// returned as-is and never cached. Cache backend failures are logged and
// treated as misses.
func Execute[T any](ctx context.Context, e *Executor, req Request, fn func(context.Context) (T, error)) (Result[T], error) {
	var zero Result[T]
	if req.Key == "" {
		return zero, ErrKeyRequired
	}

	if hit, ok := lookup[T](ctx, e, req.Key); ok {
		return hit, nil
	}

	tags := dedupeTags(append(append([]string(nil), req.Tags...), tagsFromContext(ctx)...))
	ch := e.group.DoChan(req.Key, func() (any, error) {
		// a flight that finished between our miss and this call has
		// already stored the value
		if hit, ok := lookup[T](context.WithoutCancel(ctx), e, req.Key); ok {
			return hit, nil
		}
		value, err := compute(ctx, e, req, tags, fn)
		if err != nil {
			return nil, err
		}
		return Result[T]{Value: value, TTL: req.TTL}, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		out, ok := res.Val.(Result[T])
		if !ok {
			return zero, fmt.Errorf("cache key %q is shared by %T and %T", req.Key, res.Val, out)
		}
		return out, nil
	}
}

func lookup[T any](ctx context.Context, e *Executor, key string) (Result[T], bool) {
	entry, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache get failed", "key", key, "error", err)
		return Result[T]{}, false
	}
	if !ok {
		return Result[T]{}, false
	}

	value, err := cache.Decode[T](e.codec, entry)
	if err != nil {
		e.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		if delErr := e.cache.Delete(ctx, key); delErr != nil {
			e.logger.Warn("cache delete failed", "key", key, "error", delErr)
		}
		return Result[T]{}, false
	}
	return Result[T]{Value: value, Cached: true, TTL: entry.Remaining(time.Now())}, true
}

// compute runs fn and stores its result. A stored value is returned as
// decoded from its payload so a miss and the hits that follow it are
// indistinguishable.
func compute[T any](ctx context.Context, e *Executor, req Request, tags []string, fn func(context.Context) (T, error)) (T, error) {
	started := e.epoch.Load()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	begin := time.Now()
	value, err := fn(runCtx)
	if err != nil {
		return value, err
	}

	if req.TTL <= 0 {
		return value, nil
	}
	if e.epoch.Load() != started {
		e.logger.Debug("skipping store after invalidation", "key", req.Key)
		return value, nil
	}

	payload, err := e.codec.Marshal(value)
	if err != nil {
		e.logger.Warn("cache encode failed", "key", req.Key, "error", err)
		return value, nil
	}
	entry := cache.Entry{Value: payload, Tags: tags, TTL: req.TTL}
	stored, err := cache.Decode[T](e.codec, entry)
	if err != nil {
		e.logger.Warn("cache payload does not decode, not storing", "key", req.Key, "error", err)
		return value, nil
	}

	storeCtx := context.WithoutCancel(ctx)
	if err := e.cache.Set(storeCtx, req.Key, entry); err != nil {
		e.logger.Warn("cache set failed", "key", req.Key, "error", err)
		return stored, nil
	}

	// an invalidation that raced the write must still win
	if e.epoch.Load() != started {
		if err := e.cache.Delete(storeCtx, req.Key); err != nil {
			e.logger.Warn("cache delete failed", "key", req.Key, "error", err)
		}
		return stored, nil
	}

	e.logger.Debug("query cached",
		"key", req.Key,
		"ttl", req.TTL,
		"tags", tags,
		"duration", time.Since(begin),
	)
	return stored, nil
}

// InvalidateTag drops every entry stored under each tag and returns how
// many were removed. In-flight computations will not store their results.
func (e *Executor) InvalidateTag(ctx context.Context, tags ...string) (int, error) {
	e.epoch.Add(1)

	total := 0
	var errs []error
	for _, tag := range dedupeTags(tags) {
		n, err := e.cache.InvalidateTag(ctx, tag)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidate tag %q: %w", tag, err))
			continue
		}
		total += n
		e.logger.Info("cache tag invalidated", "tag", tag, "entries", n)
	}
	return total, errors.Join(errs...)
}
