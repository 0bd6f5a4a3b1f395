package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// MaxKeyLength is the longest key emitted verbatim. Longer keys keep their
// namespace and replace the rest with a 64-bit digest of the full key.
const MaxKeyLength = 250

var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	",", "%2C",
	"=", "%3D",
	"{", "%7B",
	"}", "%7D",
)

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Output depends only on values, never on addresses, so keys are stable
// across processes sharing a redis backend.
type defaultKeySerializer struct {
	maxLength int
}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{maxLength: MaxKeyLength}
}

// SerializeKey builds a cache key from a namespace and args.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	key := strings.Join(parts, KeySeparator)
	if s.maxLength > 0 && len(key) > s.maxLength {
		return fmt.Sprintf("%s%sh:%016x", method, KeySeparator, xxhash.Sum64String(key))
	}
	return key
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch val := v.(type) {
	case string:
		return segmentEscaper.Replace(val)
	case time.Time:
		if val.IsZero() {
			return "time:zero"
		}
		return "time:" + val.Format(time.RFC3339Nano)
	case time.Duration:
		return "dur:" + strconv.FormatInt(int64(val), 10)
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() != reflect.Ptr || !rv.IsNil() {
			return segmentEscaper.Replace(val.String())
		}
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	case reflect.String:
		return segmentEscaper.Replace(rv.String())
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap sorts pairs by their serialized key for determinism.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			key:   s.serializeValue(iter.Key().Interface()),
			value: s.serializeValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.key + "=" + p.value
	}
	return fmt.Sprintf("map[%d]:{%s}", len(out), strings.Join(out, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+"="+s.serializeValue(rv.Field(i).Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback covers kinds with no stable textual form. Types that cannot
// be marshalled collapse to their type name.
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "unsupported:" + reflect.TypeOf(v).String()
	}
	return "json:" + segmentEscaper.Replace(string(data))
}
