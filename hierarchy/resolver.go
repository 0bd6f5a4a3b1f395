// Package hierarchy turns an actor code into the set of actor codes whose
// rows that actor may see.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

var (
	// ErrActorRequired is returned for an empty actor code.
	ErrActorRequired = errors.New("actor code is required")
	// ErrDirectoryUnavailable wraps any failure of the directory store.
	ErrDirectoryUnavailable = errors.New("actor directory unavailable")
	// ErrHierarchyLimit is returned when a walk exceeds the depth or size cap.
	ErrHierarchyLimit = errors.New("actor hierarchy exceeds configured limits")
)

// Directory is the source of admin flags and reporting lines.
type Directory interface {
	IsAdmin(ctx context.Context, code string) (bool, error)
	DirectSubordinates(ctx context.Context, code string) ([]string, error)
}

// Resolver computes and briefly caches allow lists.
type Resolver struct {
	directory Directory
	cfg       Config
	admins    map[string]struct{}
	cache     *sturdyc.Client[AllowList]
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver validates cfg and returns a resolver over directory.
func NewResolver(directory Directory, cfg Config, opts ...Option) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("hierarchy resolver requires a directory")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hierarchy config: %w", err)
	}

	shards := 8
	if cfg.CacheCapacity < shards {
		shards = 1
	}

	r := &Resolver{
		directory: directory,
		cfg:       cfg,
		admins:    make(map[string]struct{}, len(cfg.AdminCodes)),
		cache:     sturdyc.New[AllowList](cfg.CacheCapacity, shards, cfg.CacheTTL, 10),
		logger:    slog.Default(),
	}
	for _, code := range cfg.AdminCodes {
		r.admins[normalize(code)] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "hierarchy")
	return r, nil
}

// AllowList returns the actor's allow list. Concurrent calls for the same
// actor share one directory walk and the result is cached for CacheTTL.
// Errors are never cached.
func (r *Resolver) AllowList(ctx context.Context, actor string) (AllowList, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return AllowList{}, ErrActorRequired
	}
	return r.cache.GetOrFetch(ctx, actor, func(ctx context.Context) (AllowList, error) {
		return r.resolve(ctx, actor)
	})
}

// Invalidate drops the cached allow list of one actor.
func (r *Resolver) Invalidate(actor string) {
	r.cache.Delete(strings.TrimSpace(actor))
}

func (r *Resolver) resolve(ctx context.Context, actor string) (AllowList, error) {
	started := time.Now()

	if _, ok := r.admins[normalize(actor)]; ok {
		return Unrestricted, nil
	}
	admin, err := r.directory.IsAdmin(ctx, actor)
	if err != nil {
		return AllowList{}, r.directoryError(ctx, actor, err)
	}
	if admin {
		r.logger.Debug("actor is unrestricted", "actor", actor)
		return Unrestricted, nil
	}

	codes, err := r.walk(ctx, actor)
	if err != nil {
		return AllowList{}, err
	}

	list := Restricted(codes...)
	r.logger.Debug("allow list resolved",
		"actor", actor,
		"size", list.Len(),
		"duration", time.Since(started),
	)
	return list, nil
}

// walk expands subordinates breadth first. The visited set keeps cycles
// from looping and each code is expanded at most once.
func (r *Resolver) walk(ctx context.Context, actor string) ([]string, error) {
	visited := map[string]struct{}{actor: {}}
	out := []string{actor}
	frontier := []string{actor}

	for depth := 0; len(frontier) > 0; depth++ {
		var next []string
		for _, code := range frontier {
			subs, err := r.directory.DirectSubordinates(ctx, code)
			if err != nil {
				return nil, r.directoryError(ctx, actor, err)
			}
			for _, sub := range subs {
				sub = strings.TrimSpace(sub)
				if sub == "" {
					continue
				}
				if _, seen := visited[sub]; seen {
					continue
				}
				if depth+1 > r.cfg.MaxDepth {
					return nil, r.limitError(actor, "depth", r.cfg.MaxDepth)
				}
				if len(out)+1 > r.cfg.MaxSize {
					return nil, r.limitError(actor, "size", r.cfg.MaxSize)
				}
				visited[sub] = struct{}{}
				out = append(out, sub)
				next = append(next, sub)
			}
		}
		frontier = next
	}
	return out, nil
}

func (r *Resolver) directoryError(ctx context.Context, actor string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.logger.Error("directory lookup failed", "actor", actor, "error", err)
	return fmt.Errorf("%w: actor %q: %v", ErrDirectoryUnavailable, actor, err)
}

func (r *Resolver) limitError(actor, limit string, value int) error {
	r.logger.Warn("hierarchy limit exceeded", "actor", actor, "limit", limit, "max", value)
	return fmt.Errorf("%w: actor %q exceeds max %s %d", ErrHierarchyLimit, actor, limit, value)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
