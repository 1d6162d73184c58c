package transport

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/goliatone/go-querystate/cache"
	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

var (
	cacheHits   = metrics.GetOrCreateCounter(`querystate_result_cache_requests_total{result="hit"}`)
	cacheMisses = metrics.GetOrCreateCounter(`querystate_result_cache_requests_total{result="miss"}`)
	cacheBypass = metrics.GetOrCreateCounter(`querystate_result_cache_requests_total{result="bypass"}`)
)

// Interface assertion to ensure Cached implements Transport
var _ Transport = (*Cached)(nil)

// cachedResultSet is the msgpack form of a ResultSet.
type cachedResultSet struct {
	Status string
	Rows   [][]byte
	Detail string
}

// uncachedSets carries a response that must reach the caller without being cached:
// it has failed statements, or an invalidation ran while it was being fetched.
type uncachedSets struct {
	sets []ResultSet
}

func (uncachedSets) Error() string { return "response must not be cached" }

// Cached decorates a Transport with a read-through cache for SELECT-only queries.
// Writes pass through and invalidate every cached read of the tables they touch.
type Cached struct {
	base          Transport
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *sync.Map // cache key -> []string tags
	// epoch moves on every invalidation. A read that saw it move while fetching
	// may hold rows from before a write and is not kept.
	epoch atomic.Uint64
}

// NewCached wraps base.
func NewCached(base Transport, cacheService cache.CacheService, keySerializer cache.KeySerializer) *Cached {
	return &Cached{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   &sync.Map{},
	}
}

// Base returns the wrapped transport.
func (c *Cached) Base() Transport {
	return c.base
}

// Connect passes through and drops every cached read: the new server may hold other data.
func (c *Cached) Connect(ctx context.Context, url string) error {
	err := c.base.Connect(ctx, url)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// SignIn passes through and drops every cached read: a different user may see different rows.
func (c *Cached) SignIn(ctx context.Context, creds Credentials) (string, error) {
	token, err := c.base.SignIn(ctx, creds)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return token, err
}

// Query serves SELECT-only queries whose tables are known from the cache. Everything
// else goes to the server, and queries with writes invalidate afterwards.
func (c *Cached) Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]ResultSet, error) {
	if !q.ReadOnly() {
		sets, err := c.base.Query(ctx, q, vars)
		if err == nil {
			c.invalidateAfterWrite(ctx, q)
		}
		return sets, err
	}

	tables, exact := q.Tables()
	if q.Empty() || !exact {
		cacheBypass.Inc()
		return c.base.Query(ctx, q, vars)
	}

	key := c.keySerializer.SerializeKey(namespace(tables), q, vars)
	started := c.epoch.Load()
	c.trackKey(key, append(tables, cacheTagsFromContext(ctx)...))

	var missed atomic.Bool
	fetch := func(ctx context.Context) ([]cachedResultSet, error) {
		missed.Store(true)
		sets, err := c.base.Query(ctx, q, vars)
		if err != nil {
			return nil, err
		}
		if Check(sets) != nil || c.epoch.Load() != started {
			return nil, uncachedSets{sets: sets}
		}
		return encodeSets(sets), nil
	}

	var (
		cached []cachedResultSet
		err    error
	)
	if freshRead(ctx) {
		cached, err = cache.Refresh(ctx, c.cache, key, fetch)
	} else {
		cached, err = cache.GetOrFetch(ctx, c.cache, key, fetch)
	}

	var uncached uncachedSets
	if errors.As(err, &uncached) {
		return uncached.sets, nil
	}
	if err != nil {
		return nil, err
	}
	if missed.Load() {
		cacheMisses.Inc()
		// An invalidation between the fetch and the store above left these rows
		// behind; drop them.
		if c.epoch.Load() != started {
			_ = c.cache.Delete(ctx, key)
			c.keyRegistry.Delete(key)
		}
	} else {
		cacheHits.Inc()
	}
	return decodeSets(cached), nil
}

// Merge passes through and invalidates the record's table.
func (c *Cached) Merge(ctx context.Context, id record.ID, patch any) (json.RawMessage, error) {
	result, err := c.base.Merge(ctx, id, patch)
	if err == nil {
		c.invalidateTag(ctx, id.Table)
	}
	return result, err
}

// Create passes through and invalidates the resource's table.
func (c *Cached) Create(ctx context.Context, resource string, content any) (json.RawMessage, error) {
	result, err := c.base.Create(ctx, resource, content)
	if err == nil {
		table, _, _ := strings.Cut(resource, ":")
		c.invalidateTag(ctx, table)
	}
	return result, err
}

// Invalidate drops every cached read tagged with one of tags.
func (c *Cached) Invalidate(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		c.invalidateTag(ctx, tag)
	}
}

// trackKey registers a cache key in the key registry for later invalidation
func (c *Cached) trackKey(key string, tags []string) {
	c.keyRegistry.Store(key, dedupeStrings(tags))
}

func (c *Cached) invalidateAfterWrite(ctx context.Context, q ql.Query) {
	tables, exact := q.Tables()
	if !exact {
		c.invalidateAll(ctx)
		return
	}
	for _, table := range tables {
		c.invalidateTag(ctx, table)
	}
}

func (c *Cached) invalidateTag(ctx context.Context, tag string) {
	var keys []string
	c.keyRegistry.Range(func(k, v any) bool {
		if tags, ok := v.([]string); ok && slices.Contains(tags, tag) {
			keys = append(keys, k.(string))
		}
		return true
	})
	c.dropKeys(ctx, keys)
}

func (c *Cached) invalidateAll(ctx context.Context) {
	var keys []string
	c.keyRegistry.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	c.dropKeys(ctx, keys)
}

func (c *Cached) dropKeys(ctx context.Context, keys []string) {
	c.epoch.Add(1)
	if len(keys) == 0 {
		return
	}
	// Deletes on the in-memory backend cannot fail; the registry is cleaned regardless.
	_ = c.cache.InvalidateKeys(ctx, keys)
	for _, key := range keys {
		c.keyRegistry.Delete(key)
	}
}

// namespace groups keys by the tables they read so a backend can also drop them by prefix.
func namespace(tables []string) string {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = toSnake(t)
	}
	return "query[" + strings.Join(parts, ",") + "]"
}

func encodeSets(sets []ResultSet) []cachedResultSet {
	out := make([]cachedResultSet, len(sets))
	for i, rs := range sets {
		rows := make([][]byte, len(rs.Rows))
		for j, row := range rs.Rows {
			rows[j] = row
		}
		out[i] = cachedResultSet{Status: rs.Status, Rows: rows, Detail: rs.Detail}
	}
	return out
}

func decodeSets(cached []cachedResultSet) []ResultSet {
	out := make([]ResultSet, len(cached))
	for i, rs := range cached {
		rows := make([]json.RawMessage, len(rs.Rows))
		for j, row := range rs.Rows {
			rows[j] = json.RawMessage(row)
		}
		out[i] = ResultSet{Status: rs.Status, Rows: rows, Detail: rs.Detail}
	}
	return out
}
