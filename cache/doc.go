// Package cache provides the cache store interface, entry codec and key
// serialization used by the query executor.
//
// # Overview
//
// This package exports three interfaces and their default implementations:
//
//   - CacheService: a tagged key/value store with per-entry TTL
//   - KeySerializer: builds stable cache keys from a namespace and arguments
//   - Codec: encodes result values into entry payloads (msgpack by default)
//
// Two backends are available through NewCacheService. The "memory" backend
// keeps entries in a sharded sturdyc client local to the process. The
// "redis" backend shares entries across replicas and keeps one redis set per
// tag. A redis backend that cannot be reached at start-up falls back to the
// in-memory store when FallbackToMemory is set.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(ctx, cache.DefaultConfig(), logger)
//	key := cache.NewDefaultKeySerializer().SerializeKey("report", params)
//	err = svc.Set(ctx, key, cache.Entry{Value: payload, TTL: ttl, Tags: tags})
//	entry, ok, err := svc.Get(ctx, key)
//	n, err := svc.InvalidateTag(ctx, "dataset:daily-sales")
//
// # Key Serialization Strategy
//
// The default key serializer handles:
//
//   - Basic types: direct string representation
//   - Strings: separator characters are percent-escaped so values cannot
//     forge segment boundaries
//   - time.Time: RFC 3339 with nanoseconds
//   - Slices/arrays: recursive serialization of elements
//   - Maps: pairs sorted by serialized key
//   - Structs: exported fields with name=value pairs
//   - Anything else: JSON, or the type name if it cannot be marshalled
//
// Keys never contain addresses, so two processes build the same key for the
// same input. Keys longer than MaxKeyLength keep their namespace and replace
// the remainder with an xxhash digest of the whole key.
//
// # See Also
//
// The querycache package builds request keys and drives single-flight
// execution on top of CacheService.
package cache
