package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-querystate/cache"
	"github.com/goliatone/go-querystate/internal/cacheinfra"
	"github.com/goliatone/go-querystate/internal/sqlstore"
	"github.com/goliatone/go-querystate/pkg/testsupport"
	"github.com/goliatone/go-querystate/querystate"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/transport"
)

func seededContainer(tb testing.TB, config cacheinfra.Config, n int) *Container {
	tb.Helper()

	db, err := sqlstore.Open(":memory:")
	if err != nil {
		tb.Fatalf("Failed to open record store: %v", err)
	}
	tb.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for i := 0; i < n; i++ {
		item := testsupport.NewItem(fmt.Sprintf("%d", i), fmt.Sprintf("item %d", i), i%2 == 0)
		if _, err := db.Seed(ctx, "item", item); err != nil {
			tb.Fatalf("Failed to seed: %v", err)
		}
	}

	container, err := NewContainer(config, db)
	if err != nil {
		tb.Fatalf("Failed to create DI container: %v", err)
	}
	if err := container.Session().SignIn(ctx, "sqlite://memory", transport.Credentials{}); err != nil {
		tb.Fatalf("Failed to sign in: %v", err)
	}
	return container
}

// TestConcurrentStores has many consumers acquire and release entries for a handful
// of selections while writers change the table underneath them.
func TestConcurrentStores(t *testing.T) {
	config := cacheinfra.Config{
		Capacity:             1000,
		NumShards:            16,
		TTL:                  5 * time.Second,
		EvictionPercentage:   10,
		EarlyRefresh:         nil,
		MissingRecordStorage: true,
		EvictionInterval:     0,
	}
	container := seededContainer(t, config, 20)
	store := NewStore[testsupport.Item](container)
	defer store.Close()
	writer := NewWriter[testsupport.Item](container)

	selections := []string{
		"SELECT * FROM item",
		"SELECT * FROM item WHERE done = false",
		"SELECT * FROM item WHERE done = true",
		"SELECT * FROM item ORDER BY title DESC LIMIT 5",
	}

	const numGoroutines = 20
	const operationsPerGoroutine = 10

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < operationsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				e := store.Get(selector.MustFromText(selections[(workerID+j)%len(selections)]), selector.Parameters{})
				st, err := e.Await(ctx)
				if err == nil && st.Phase == querystate.PhaseFailed {
					err = st.Err
				}
				if err != nil {
					errs <- fmt.Errorf("worker %d: %w", workerID, err)
				}

				if workerID%5 == 0 && len(st.Records) > 0 {
					items := querystate.Project[testsupport.Item, testsupport.ItemView, bool](e, testsupport.ItemMapping{}, false, nil)
					if len(items) > 0 {
						if _, err := writer.Patch(ctx, items[0].Ref, map[string]any{"title": fmt.Sprintf("w%d-%d", workerID, j)}); err != nil {
							errs <- fmt.Errorf("worker %d patch: %w", workerID, err)
						}
					}
				}

				store.Release(e)
				cancel()
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	if n := store.Len(); n != 0 {
		t.Errorf("Expected every entry to be released, %d left", n)
	}
}

// BenchmarkSelectorCacheKey benchmarks the canonical rendering used for entry and cache keys
func BenchmarkSelectorCacheKey(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()
	sel := selector.MustFromText("SELECT title, done FROM item WHERE done = false AND owner = $owner ORDER BY title ASC LIMIT 20")
	params := selector.NewParameters("owner", "user:1")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = serializer.SerializeKey("item", sel, params.Vars())
	}
}

// BenchmarkCachedVsBaseQuery compares reads served by the result cache with reads
// that reach the record store.
func BenchmarkCachedVsBaseQuery(b *testing.B) {
	container := seededContainer(b, cacheinfra.DefaultConfig(), 100)
	ctx := context.Background()
	q := selector.MustFromText("SELECT * FROM item WHERE done = false").WireQuery()

	b.Run("base_transport_Query", func(b *testing.B) {
		base := container.Transport().Base()
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = base.Query(ctx, q, nil)
		}
	})

	// Warm up the result cache
	_, _ = container.Transport().Query(ctx, q, nil)

	b.Run("cached_transport_Query_cache_hit", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = container.Transport().Query(ctx, q, nil)
		}
	})
}

// BenchmarkConcurrentEntryAccess benchmarks acquiring a shared, already loaded entry
func BenchmarkConcurrentEntryAccess(b *testing.B) {
	container := seededContainer(b, cacheinfra.DefaultConfig(), 100)
	store := NewStore[testsupport.Item](container)
	defer store.Close()

	sel := selector.MustFromText("SELECT * FROM item")
	held := store.Get(sel, selector.Parameters{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := held.Await(ctx); err != nil {
		b.Fatalf("Failed to load entry: %v", err)
	}

	b.Run("concurrent_get_release", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				e := store.Get(sel, selector.Parameters{})
				_ = e.Read()
				store.Release(e)
			}
		})
	})
}
