package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidResultType is returned when cached bytes cannot be decoded into the
// requested type.
var ErrInvalidResultType = errors.New("cached value has an unexpected type")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// Keyer lets a value choose its own key segment instead of being serialized by reflection.
type Keyer interface {
	CacheKey() string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService stores encoded values. Implementations must deduplicate concurrent
// fetches of the same missing key.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) ([]byte, error)) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// GetOrFetch is the typed entry point: values are msgpack-encoded on the way in and
// decoded into a fresh T on every hit, so callers never share cached memory.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	// Set only when this call ran the fetch itself; background refreshes may run the
	// closure after we returned.
	var fetched atomic.Pointer[T]

	data, err := service.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}
		fetched.Store(&v)
		return msgpack.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	if v := fetched.Load(); v != nil {
		return *v, nil
	}
	return decode[T](data)
}

// Refresh fetches unconditionally and overwrites the cached value for key.
func Refresh[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	v, err := fetchFn(ctx)
	if err != nil {
		return v, err
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encode cache value: %w", err)
	}
	if err := service.Set(ctx, key, data); err != nil {
		return v, err
	}
	return v, nil
}

func decode[T any](data []byte) (T, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidResultType, err)
	}
	return out, nil
}
