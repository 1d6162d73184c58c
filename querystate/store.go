package querystate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-querystate/logging"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/session"
	"github.com/goliatone/go-querystate/transport"
)

type entryKey struct {
	selector string
	params   string
}

func keyOf(sel selector.Selector, params selector.Parameters) entryKey {
	return entryKey{selector: sel.CacheKey(), params: params.CacheKey()}
}

type storeConfig struct {
	name         string
	sink         logging.Sink
	fetchTimeout time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

// WithName labels the store's metrics. Defaults to the record type name.
func WithName(name string) StoreOption {
	return func(c *storeConfig) {
		c.name = name
	}
}

// WithSink overrides the session's sink for fetch failures.
func WithSink(sink logging.Sink) StoreOption {
	return func(c *storeConfig) {
		c.sink = sink
	}
}

// WithFetchTimeout bounds every fetch. Zero means no bound.
func WithFetchTimeout(d time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.fetchTimeout = d
	}
}

type storeMetrics struct {
	fetchOK        *metrics.Counter
	fetchFailed    *metrics.Counter
	fetchDiscarded *metrics.Counter
	entriesCreated *metrics.Counter
}

func newStoreMetrics(name string) storeMetrics {
	counter := func(metric, result string) *metrics.Counter {
		if result == "" {
			return metrics.GetOrCreateCounter(fmt.Sprintf(`%s{store=%q}`, metric, name))
		}
		return metrics.GetOrCreateCounter(fmt.Sprintf(`%s{store=%q,result=%q}`, metric, name, result))
	}
	return storeMetrics{
		fetchOK:        counter("querystate_fetches_total", "ok"),
		fetchFailed:    counter("querystate_fetches_total", "failed"),
		fetchDiscarded: counter("querystate_fetches_total", "discarded"),
		entriesCreated: counter("querystate_entries_created_total", ""),
	}
}

// Store is the registry of entries for records of type R under one session.
// Identical (selector, parameters) pairs always resolve to the same live entry.
type Store[R record.Remote] struct {
	session *session.Session
	cfg     storeConfig
	metrics storeMetrics

	entries *xsync.MapOf[entryKey, *Entry[R]]

	closeOnce   sync.Once
	unsubscribe func()
}

func NewStore[R record.Remote](s *session.Session, opts ...StoreOption) *Store[R] {
	var zero R
	cfg := storeConfig{
		name: fmt.Sprintf("%T", zero),
		sink: session.Require(s).Sink(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sink == nil {
		cfg.sink = logging.Default()
	}

	st := &Store[R]{
		session: s,
		cfg:     cfg,
		metrics: newStoreMetrics(cfg.name),
		entries: xsync.NewMapOf[entryKey, *Entry[R]](),
	}
	st.unsubscribe = s.Subscribe(st.sessionChanged)
	return st
}

// Session returns the session the store fetches through.
func (s *Store[R]) Session() *session.Session {
	return s.session
}

// Get returns the entry for (sel, params), acquiring a reference the caller must give
// back with Release. The first Get for a key creates the entry and starts its fetch;
// if the session is not ready yet the entry stays Idle until it is.
func (s *Store[R]) Get(sel selector.Selector, params selector.Parameters) *Entry[R] {
	k := keyOf(sel, params)
	created := false
	e, _ := s.entries.Compute(k, func(old *Entry[R], loaded bool) (*Entry[R], bool) {
		if loaded {
			old.refs++
			return old, false
		}
		created = true
		n := newEntry(s, k, sel, params)
		n.refs = 1
		return n, false
	})

	if created {
		s.metrics.entriesCreated.Inc()
		e.start(false)
	} else if e.takeStale() {
		e.start(true)
	}
	return e
}

// Release gives back a reference obtained from Get. When the last reference goes the
// entry is closed and any fetch still in flight for it is discarded.
func (s *Store[R]) Release(e *Entry[R]) {
	if e == nil {
		return
	}
	removed := false
	s.entries.Compute(e.key, func(old *Entry[R], loaded bool) (*Entry[R], bool) {
		if !loaded || old != e {
			return old, !loaded
		}
		old.refs--
		if old.refs > 0 {
			return old, false
		}
		removed = true
		return old, true
	})
	if removed {
		e.close()
	}
}

// Len returns the number of live entries.
func (s *Store[R]) Len() int {
	return s.entries.Size()
}

// Bind returns a consumer-side handle that follows a changing key.
func (s *Store[R]) Bind() *Binding[R] {
	return &Binding[R]{store: s}
}

// Close stops following the session. Live entries keep their records.
func (s *Store[R]) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
	})
}

// sessionChanged starts the fetches of entries that were waiting for the session.
func (s *Store[R]) sessionChanged(ready bool) {
	if !ready {
		return
	}
	s.entries.Range(func(_ entryKey, e *Entry[R]) bool {
		e.resume()
		return true
	})
}

func (s *Store[R]) fetch(ctx context.Context, sel selector.Selector, params selector.Parameters) ([]R, error) {
	if s.cfg.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.fetchTimeout)
		defer cancel()
	}

	sets, err := s.session.Transport().Query(ctx, sel.WireQuery(), params.Vars())
	if err != nil {
		return nil, transport.Wrap("query", err)
	}
	rs, err := transport.Take(sets, 0)
	if err != nil {
		return nil, err
	}
	return record.Decode[R](rs.Rows)
}
