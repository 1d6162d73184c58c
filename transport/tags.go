package transport

import (
	"context"
)

type freshReadContextKey struct{}

type cacheTagsContextKey struct{}

// WithFreshRead makes cached transports skip the cache for reads issued with ctx and
// store the fresh result instead. Explicit reloads and refreshes use it.
func WithFreshRead(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, freshReadContextKey{}, true)
}

func freshRead(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(freshReadContextKey{}).(bool)
	return v
}

// WithCacheTags attaches extra invalidation tags to reads issued with ctx. A write
// that touches a table invalidates every read tagged with that table's name.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
