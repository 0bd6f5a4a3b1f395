package cacheinfra

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// sturdycService keeps entries in a sharded sturdyc client and indexes keys
// by tag so a whole tag can be dropped without scanning the store.
type sturdycService struct {
	client   *sturdyc.Client[Entry]
	tags     *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
	capacity int
	now      func() time.Time
}

// NewSturdycService creates a new sturdyc cache service adapter.
//
// The constructor translates Config parameters to sturdyc initialization:
// - Capacity, NumShards, TTL, EvictionPercentage are passed to sturdyc.New()
// - Other options are applied via ToSturdycOptions()
//
// sturdyc applies one TTL per client, so Config.TTL acts as a ceiling and
// the per-entry TTL is enforced on read.
func NewSturdycService(cfg Config) (*sturdycService, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &sturdycService{
		client:   client,
		tags:     xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
		capacity: cfg.Capacity,
		now:      time.Now,
	}, nil
}

// Get returns the entry stored under key. Entries past their own TTL are
// removed and reported as a miss.
func (s *sturdycService) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.client.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(s.now()) {
		s.client.Delete(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores entry under key and registers the key under each of its tags.
func (s *sturdycService) Set(ctx context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.now()
	}
	s.client.Set(key, entry)

	for _, tag := range entry.Tags {
		members, _ := s.tags.LoadOrCompute(tag, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		members.Store(key, struct{}{})
		if members.Size() > s.capacity {
			s.pruneMembers(members)
		}
	}
	return nil
}

// Delete removes a single entry from the cache.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// InvalidateTag removes every entry registered under tag and returns how
// many keys were dropped.
func (s *sturdycService) InvalidateTag(ctx context.Context, tag string) (int, error) {
	members, ok := s.tags.LoadAndDelete(tag)
	if !ok {
		return 0, nil
	}

	count := 0
	members.Range(func(key string, _ struct{}) bool {
		s.client.Delete(key)
		count++
		return true
	})
	return count, nil
}

// pruneMembers forgets tag members that the client already evicted.
func (s *sturdycService) pruneMembers(members *xsync.MapOf[string, struct{}]) {
	members.Range(func(key string, _ struct{}) bool {
		if _, ok := s.client.Get(key); !ok {
			members.Delete(key)
		}
		return true
	})
}
