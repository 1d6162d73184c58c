// Package cache provides the result-set cache used in front of a transport, and the key
// serializer that names cache entries.
//
// # Overview
//
//   - CacheService: read-through byte cache with in-flight deduplication
//   - KeySerializer: builds stable keys from a namespace and arguments
//   - GetOrFetch / Refresh: typed helpers that msgpack-encode values
//
// Cached values are stored encoded. Every hit decodes a new value, so a caller that
// mutates what it got back cannot corrupt what the next caller sees.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	keys := cache.NewDefaultKeySerializer()
//	key := keys.SerializeKey("query[item]", query, vars)
//	sets, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]Row, error) {
//		return fetchRows(ctx)
//	})
//
// # Key Serialization Strategy
//
// Values implementing Keyer (selectors, parameters, queries) contribute their own
// canonical text. Other values are serialized by reflection:
//
//   - basic types use their %v form
//   - slices and arrays are serialized element by element
//   - maps are serialized with entries sorted for deterministic output
//   - structs contribute exported fields as name:value pairs
//   - anything else falls back to JSON
//
// Function and channel values are keyed by pointer and are only stable within a process.
//
// # Invalidation
//
// The first key segment is a namespace. DeleteByPrefix drops every key in a namespace,
// which is how writes invalidate the reads of the tables they touch.
package cache
