package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// mapCacheService is a minimal in-memory CacheService that records calls.
type mapCacheService struct {
	mu     sync.Mutex
	values map[string][]byte
	calls  []string
}

func newMapCacheService() *mapCacheService {
	return &mapCacheService{values: make(map[string][]byte)}
}

func (m *mapCacheService) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mapCacheService) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) ([]byte, error)) ([]byte, error) {
	m.record("GetOrFetch")
	m.mu.Lock()
	v, ok := m.values[key]
	m.mu.Unlock()
	if ok {
		return v, nil
	}
	v, err := fetchFn(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
	return v, nil
}

func (m *mapCacheService) Set(ctx context.Context, key string, value []byte) error {
	m.record("Set")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mapCacheService) Delete(ctx context.Context, key string) error {
	m.record("Delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mapCacheService) DeleteByPrefix(ctx context.Context, prefix string) error {
	return nil
}

func (m *mapCacheService) InvalidateKeys(ctx context.Context, keys []string) error {
	return nil
}

type row struct {
	ID    string
	Title string
	Tags  []string
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	svc := newMapCacheService()
	fetches := 0
	fetch := func(ctx context.Context) ([]row, error) {
		fetches++
		return []row{{ID: "item:1", Title: "a", Tags: []string{"x"}}}, nil
	}

	first, err := GetOrFetch(context.Background(), svc, "k", fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := GetOrFetch(context.Background(), svc, "k", fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
	if len(second) != 1 || second[0].Title != "a" || second[0].Tags[0] != "x" {
		t.Errorf("unexpected cached value: %+v", second)
	}

	// Hits decode a private copy.
	second[0].Tags[0] = "mutated"
	third, _ := GetOrFetch(context.Background(), svc, "k", fetch)
	if third[0].Tags[0] != "x" {
		t.Errorf("cached value was mutated through a previous result: %+v", third)
	}
	if first[0].Tags[0] != "x" {
		t.Errorf("first result changed: %+v", first)
	}
}

func TestGetOrFetch_PropagatesFetchError(t *testing.T) {
	svc := newMapCacheService()
	want := errors.New("boom")

	_, err := GetOrFetch(context.Background(), svc, "k", func(ctx context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if _, ok := svc.values["k"]; ok {
		t.Error("failed fetches must not be cached")
	}
}

func TestGetOrFetch_TypeMismatch(t *testing.T) {
	svc := newMapCacheService()
	data, err := msgpack.Marshal("not a number")
	if err != nil {
		t.Fatal(err)
	}
	svc.values["k"] = data

	_, err = GetOrFetch(context.Background(), svc, "k", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType, got %v", err)
	}
}

func TestRefresh_OverwritesCachedValue(t *testing.T) {
	svc := newMapCacheService()
	ctx := context.Background()

	if _, err := GetOrFetch(ctx, svc, "k", func(ctx context.Context) (string, error) { return "old", nil }); err != nil {
		t.Fatal(err)
	}
	got, err := Refresh(ctx, svc, "k", func(ctx context.Context) (string, error) { return "new", nil })
	if err != nil || got != "new" {
		t.Fatalf("Refresh() = %q, %v", got, err)
	}

	cached, err := GetOrFetch(ctx, svc, "k", func(ctx context.Context) (string, error) {
		t.Error("fetch should not run after refresh")
		return "", nil
	})
	if err != nil || cached != "new" {
		t.Errorf("expected refreshed value, got %q, %v", cached, err)
	}
}
