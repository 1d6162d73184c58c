package querystate

import (
	"sync"

	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/selector"
)

// Binding is one consumer's view of a store: it holds the entry for the consumer's
// current key and swaps it when the key changes.
type Binding[R record.Remote] struct {
	store *Store[R]

	mu     sync.Mutex
	entry  *Entry[R]
	sel    selector.Selector
	params selector.Parameters
}

// Set points the binding at (sel, params). An unchanged key keeps the current entry;
// a changed key acquires the new entry before releasing the old one, so an old fetch
// nobody else waits for is abandoned.
func (b *Binding[R]) Set(sel selector.Selector, params selector.Parameters) *Entry[R] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entry != nil && b.sel.Equal(sel) && b.params.Equal(params) {
		return b.entry
	}
	old := b.entry
	b.entry = b.store.Get(sel, params)
	b.sel, b.params = sel, params
	if old != nil {
		b.store.Release(old)
	}
	return b.entry
}

// Entry returns the current entry, nil before the first Set.
func (b *Binding[R]) Entry() *Entry[R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry
}

// Read returns the current entry's state, or an Idle state before the first Set.
func (b *Binding[R]) Read() State[R] {
	if e := b.Entry(); e != nil {
		return e.Read()
	}
	return State[R]{Phase: PhaseIdle}
}

// Close releases the current entry.
func (b *Binding[R]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry != nil {
		b.store.Release(b.entry)
		b.entry = nil
	}
}
