package querystate

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/golang/glog"

	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/transport"
)

type entrySub[R any] struct {
	id uint64
	fn func(State[R])
}

// Entry is the cached result list of one (selector, parameters) pair. All methods are
// safe for concurrent use; subscribers are called without the entry's lock held.
type Entry[R record.Remote] struct {
	store    *Store[R]
	key      entryKey
	selector selector.Selector
	params   selector.Parameters

	// refs is guarded by the store's registry, not by mu.
	refs int

	mu         sync.Mutex
	phase      Phase
	records    []R
	err        error
	generation uint64
	stale      bool
	closed     bool
	started    bool
	settled    chan struct{}
	subs       []entrySub[R]
	nextSubID  uint64
}

func newEntry[R record.Remote](s *Store[R], k entryKey, sel selector.Selector, params selector.Parameters) *Entry[R] {
	return &Entry[R]{
		store:    s,
		key:      k,
		selector: sel,
		params:   params,
		phase:    PhaseIdle,
		settled:  make(chan struct{}),
	}
}

func (e *Entry[R]) Selector() selector.Selector {
	return e.selector
}

func (e *Entry[R]) Parameters() selector.Parameters {
	return e.params
}

// Read returns the current state without side effects.
func (e *Entry[R]) Read() State[R] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Entry[R]) snapshotLocked() State[R] {
	st := State[R]{Phase: e.phase, Err: e.err}
	if e.phase == PhaseReady {
		st.Records = slices.Clone(e.records)
		if st.Records == nil {
			st.Records = []R{}
		}
	}
	return st
}

// Subscribe calls fn with a new snapshot after every change until cancel is called.
func (e *Entry[R]) Subscribe(fn func(State[R])) (cancel func()) {
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, entrySub[R]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.subs = slices.DeleteFunc(e.subs, func(s entrySub[R]) bool { return s.id == id })
		})
	}
}

// Await blocks until the entry is Ready or Failed, or ctx is done.
func (e *Entry[R]) Await(ctx context.Context) (State[R], error) {
	for {
		e.mu.Lock()
		if e.phase.Settled() {
			st := e.snapshotLocked()
			e.mu.Unlock()
			return st, nil
		}
		settled := e.settled
		e.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return e.Read(), ctx.Err()
		}
	}
}

// Reload refetches the entry, bypassing any result cache. Records read before the new
// result arrives are gone: the entry is Loading until then.
func (e *Entry[R]) Reload() {
	e.start(true)
}

// Invalidate marks the entry stale; the next Store.Get for its key reloads it.
func (e *Entry[R]) Invalidate() {
	e.mu.Lock()
	e.stale = true
	e.mu.Unlock()
}

func (e *Entry[R]) takeStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	stale := e.stale
	e.stale = false
	return stale
}

// Append adds r at the end of the list.
func (e *Entry[R]) Append(r R) error {
	return e.mutate(func(records []R) ([]R, error) {
		return append(slices.Clone(records), r), nil
	})
}

// ReplaceAt replaces the record at index with *r, or removes it when r is nil so
// later records shift down by one.
func (e *Entry[R]) ReplaceAt(index int, r *R) error {
	return e.mutate(func(records []R) ([]R, error) {
		if index < 0 || index >= len(records) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(records))
		}
		return splice(records, index, r), nil
	})
}

// ReplaceByID is ReplaceAt for the record identified by id. hint is tried first, then
// the list is scanned. ErrStaleRef is returned when id is not in the list.
func (e *Entry[R]) ReplaceByID(id record.ID, hint int, r *R) error {
	return e.mutate(func(records []R) ([]R, error) {
		index := locate(records, id, hint)
		if index < 0 {
			return nil, fmt.Errorf("%w: %s", ErrStaleRef, id)
		}
		return splice(records, index, r), nil
	})
}

func (e *Entry[R]) mutate(fn func([]R) ([]R, error)) error {
	e.mu.Lock()
	if e.phase != PhaseReady {
		e.mu.Unlock()
		return ErrNotReady
	}
	records, err := fn(e.records)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.records = records
	st, subs := e.snapshotLocked(), slices.Clone(e.subs)
	e.mu.Unlock()

	notify(subs, st)
	return nil
}

// start moves the entry to Loading and fetches, or leaves it Idle while the session is
// not ready. Any fetch already in flight is superseded.
func (e *Entry[R]) start(fresh bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.generation++
	gen := e.generation
	e.records = nil
	e.err = nil
	if e.phase.Settled() {
		e.settled = make(chan struct{})
	}

	fetching := false
	switch {
	case e.selector.IsEmpty():
		// Nothing to ask the server.
		e.phase = PhaseReady
		close(e.settled)
	case !e.store.session.Ready():
		e.phase = PhaseIdle
	default:
		e.phase = PhaseLoading
		fetching = true
	}
	st, subs := e.snapshotLocked(), slices.Clone(e.subs)
	e.mu.Unlock()

	notify(subs, st)
	if fetching {
		go e.fetch(gen, fresh)
	}
}

// resume starts an entry that was left Idle for want of a session. An entry its
// creator has not started yet is skipped: that first start sees the session itself.
func (e *Entry[R]) resume() {
	e.mu.Lock()
	idle := e.started && e.phase == PhaseIdle && !e.closed
	e.mu.Unlock()
	if idle {
		e.start(false)
	}
}

func (e *Entry[R]) fetch(gen uint64, fresh bool) {
	ctx := context.Background()
	if fresh {
		ctx = transport.WithFreshRead(ctx)
	}
	records, err := e.store.fetch(ctx, e.selector, e.params)

	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		e.store.metrics.fetchDiscarded.Inc()
		glog.V(2).Infof("querystate: discarded stale result for %s", e.selector)
		return
	}
	if err != nil {
		e.phase = PhaseFailed
		e.err = err
	} else {
		e.phase = PhaseReady
		e.records = records
	}
	close(e.settled)
	st, subs := e.snapshotLocked(), slices.Clone(e.subs)
	e.mu.Unlock()

	if err != nil {
		e.store.metrics.fetchFailed.Inc()
		e.store.cfg.sink.Report(err)
	} else {
		e.store.metrics.fetchOK.Inc()
	}
	notify(subs, st)
}

func (e *Entry[R]) close() {
	e.mu.Lock()
	e.closed = true
	e.generation++
	e.subs = nil
	e.mu.Unlock()
}

func notify[R any](subs []entrySub[R], st State[R]) {
	for _, s := range subs {
		s.fn(st)
	}
}

// splice returns a new list with index replaced by *r, or removed when r is nil.
func splice[R any](records []R, index int, r *R) []R {
	if r == nil {
		out := make([]R, 0, len(records)-1)
		out = append(out, records[:index]...)
		return append(out, records[index+1:]...)
	}
	out := slices.Clone(records)
	out[index] = *r
	return out
}

func locate[R record.Remote](records []R, id record.ID, hint int) int {
	if hint >= 0 && hint < len(records) && records[hint].RecordID() == id {
		return hint
	}
	for i, r := range records {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}
