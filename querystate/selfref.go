package querystate

import (
	"context"

	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/scope"
)

// SelfRef lets a projected item address its own record in the owning entry. The index
// is a hint: writes locate the record by identity, so edits to other items never
// redirect a reference.
type SelfRef[R record.Remote] struct {
	entry *Entry[R]
	index int
	id    record.ID
}

// NewSelfRef builds a reference to the record id, last seen at index in entry.
func NewSelfRef[R record.Remote](entry *Entry[R], index int, id record.ID) *SelfRef[R] {
	return &SelfRef[R]{entry: entry, index: index, id: id}
}

func (r *SelfRef[R]) Entry() *Entry[R] {
	return r.entry
}

func (r *SelfRef[R]) Index() int {
	return r.index
}

func (r *SelfRef[R]) ID() record.ID {
	return r.id
}

// Write replaces the referenced record with *v, or removes it when v is nil.
func (r *SelfRef[R]) Write(v *R) error {
	return r.entry.ReplaceByID(r.id, r.index, v)
}

// WithSelfRef returns a child context carrying ref.
func WithSelfRef[R record.Remote](ctx context.Context, ref *SelfRef[R]) context.Context {
	return scope.With(ctx, ref)
}

// SelfRefFrom returns the reference carried by ctx. It panics with
// *scope.MissingContextError when there is none.
func SelfRefFrom[R record.Remote](ctx context.Context) *SelfRef[R] {
	return scope.Must[*SelfRef[R]](ctx, "self reference", "only items projected from a query state have one")
}
