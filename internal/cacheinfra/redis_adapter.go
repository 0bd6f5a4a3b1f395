package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// redisService stores entries in redis so every replica shares one cache.
// Each tag is a redis set of entry keys.
type redisService struct {
	client redis.UniversalClient
	prefix string
	maxTTL time.Duration
}

// NewRedisService connects to redis and verifies the connection with a ping.
func NewRedisService(ctx context.Context, cfg Config) (*redisService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg))
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}

	return newRedisServiceWithClient(client, cfg), nil
}

func newRedisServiceWithClient(client redis.UniversalClient, cfg Config) *redisService {
	return &redisService{
		client: client,
		prefix: cfg.Redis.KeyPrefix,
		maxTTL: cfg.TTL,
	}
}

func pingTimeout(cfg Config) time.Duration {
	if cfg.Redis.DialTimeout > 0 {
		return cfg.Redis.DialTimeout
	}
	return 2 * time.Second
}

func (s *redisService) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *redisService) tagKey(tag string) string   { return s.prefix + "tag:" + tag }

func (s *redisService) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %q: %w", key, err)
	}
	return entry, true, nil
}

func (s *redisService) Set(ctx context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	ttl := entry.TTL
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", key, err)
	}

	entryKey := s.entryKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey, data, ttl)
		for _, tag := range entry.Tags {
			tagKey := s.tagKey(tag)
			pipe.SAdd(ctx, tagKey, entryKey)
			// members never outlive maxTTL, so neither does the set
			pipe.Expire(ctx, tagKey, s.maxTTL)
		}
		return nil
	})
	return err
}

func (s *redisService) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.entryKey(key)).Err()
}

func (s *redisService) InvalidateTag(ctx context.Context, tag string) (int, error) {
	tagKey := s.tagKey(tag)
	members, err := s.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return 0, err
	}

	var removed int64
	if len(members) > 0 {
		removed, err = s.client.Del(ctx, members...).Result()
		if err != nil {
			return 0, err
		}
	}
	if err := s.client.Del(ctx, tagKey).Err(); err != nil {
		return int(removed), err
	}
	return int(removed), nil
}

// Close releases the redis connection pool.
func (s *redisService) Close() error {
	return s.client.Close()
}
