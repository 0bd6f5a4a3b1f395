package cache

import (
	"context"
	"fmt"

	"github.com/goliatone/go-report-cache/internal/cacheinfra"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one stored, already encoded result together with its TTL and
// invalidation tags.
type Entry = cacheinfra.Entry

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls and processes.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// CacheService is the store behind the query executor. Implementations must
// honour the per-entry TTL and drop every key registered under a tag on
// InvalidateTag.
type CacheService interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// Codec turns result values into entry payloads and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

// NewMsgpackCodec returns the default Codec.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Decode unmarshals an entry payload into T.
func Decode[T any](codec Codec, entry Entry) (T, error) {
	var out T
	if err := codec.Unmarshal(entry.Value, &out); err != nil {
		return out, fmt.Errorf("decode cache entry: %w", err)
	}
	return out, nil
}
