package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/goliatone/go-querystate/logging"
	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/querystate"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/session"
	"github.com/goliatone/go-querystate/transport"
)

// ErrEmptySelector is returned by Update for a reference whose entry has no selector
// to re-check the record against.
var ErrEmptySelector = errors.New("entry has an empty selector")

// ErrReservedParameter is returned by Update when the entry's own parameters bind
// the name the merge patch travels under.
var ErrReservedParameter = errors.New("entry parameters bind a reserved name")

// mergeParam is the parameter an update binds its merge patch to. Selector
// parameters may not use it.
const mergeParam = "__merge"

// Option configures a Writer.
type Option func(*writerConfig)

type writerConfig struct {
	sink logging.Sink
}

// WithSink overrides the session's sink for write failures.
func WithSink(sink logging.Sink) Option {
	return func(c *writerConfig) {
		c.sink = sink
	}
}

// Writer performs writes for records of type R through a session.
type Writer[R record.Remote] struct {
	session *session.Session
	sink    logging.Sink
}

func NewWriter[R record.Remote](s *session.Session, opts ...Option) *Writer[R] {
	cfg := writerConfig{sink: session.Require(s).Sink()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sink == nil {
		cfg.sink = logging.Default()
	}
	return &Writer[R]{session: s, sink: cfg.sink}
}

// Update merges data into the referenced record and, in the same round trip, re-runs
// the entry's selector scoped to that record. A record that still matches replaces
// the old one in place (Applied); one that no longer matches is removed (Dropped).
func (w *Writer[R]) Update(ctx context.Context, ref *querystate.SelfRef[R], data any) (*Op, error) {
	op := w.begin(KindUpdate, ref.ID())

	entry := ref.Entry()
	scoped, ok := entry.Selector().ScopedTo(ref.ID()).Statement()
	if !ok {
		return op, w.fail(op, ErrEmptySelector)
	}

	params := entry.Parameters().Vars()
	if _, taken := params.Lookup(mergeParam); taken {
		return op, w.fail(op, fmt.Errorf("%w: $%s", ErrReservedParameter, mergeParam))
	}

	q := ql.Query{Statements: []ql.Statement{
		&ql.UpdateStatement{
			What:   []ql.Expr{ref.ID().Thing()},
			Merge:  ql.Param{Name: mergeParam},
			Return: ql.ReturnNone,
		},
		scoped,
	}}
	vars := params.With(mergeParam, data)

	sets, err := w.session.Transport().Query(ctx, q, vars)
	if err != nil {
		return op, w.fail(op, transport.Wrap("query", err))
	}
	if err := transport.Check(sets); err != nil {
		return op, w.fail(op, err)
	}
	rs, err := transport.Take(sets, 1)
	if err != nil {
		return op, w.fail(op, err)
	}
	records, err := record.Decode[R](rs.Rows)
	if err != nil {
		return op, w.fail(op, err)
	}

	if len(records) == 0 {
		return op, w.apply(op, ref, nil, StateDropped)
	}
	return op, w.apply(op, ref, &records[0], StateApplied)
}

// UpdateLocal maps a local value to its remote shape and updates with it.
func UpdateLocal[R record.Remote, L any, X any](ctx context.Context, w *Writer[R], ref *querystate.SelfRef[R], mapping record.Mapping[R, L, X], local L) (*Op, error) {
	return w.Update(ctx, ref, mapping.ToRemote(local))
}

// Patch merges data into the referenced record and stores the merged record the server
// returns, without checking it against the entry's selector.
func (w *Writer[R]) Patch(ctx context.Context, ref *querystate.SelfRef[R], data any) (*Op, error) {
	op := w.begin(KindPatch, ref.ID())

	row, err := w.session.Transport().Merge(ctx, ref.ID(), data)
	if err != nil {
		return op, w.fail(op, transport.Wrap("merge", err))
	}
	merged, err := record.DecodeOne[R](row)
	if err != nil {
		return op, w.fail(op, err)
	}
	return op, w.apply(op, ref, &merged, StateApplied)
}

// Create stores content in resource and appends the server's canonical record to
// target, which may be nil.
func (w *Writer[R]) Create(ctx context.Context, resource string, content any, target *querystate.Entry[R]) (R, *Op, error) {
	var zero R
	op := w.begin(KindCreate, record.ID{})

	row, err := w.session.Transport().Create(ctx, resource, content)
	if err != nil {
		return zero, op, w.fail(op, transport.Wrap("create", err))
	}
	created, err := record.DecodeOne[R](row)
	if err != nil {
		return zero, op, w.fail(op, err)
	}
	op.setTarget(created.RecordID())

	if target != nil {
		if err := target.Append(created); err != nil {
			// The entry is reloading and will pick the record up from the server.
			w.trace(op, err)
			op.markUnchanged()
		}
	} else {
		op.markUnchanged()
	}
	return created, op, w.finish(op, StateApplied)
}

// Refresh re-reads the referenced record by identity and stores it. A record that
// vanished leaves the list unchanged.
func (w *Writer[R]) Refresh(ctx context.Context, ref *querystate.SelfRef[R]) (*Op, error) {
	return w.refresh(ctx, ref, KindRefresh)
}

// RefreshOrDrop is Refresh, except that a vanished record is removed from the list.
func (w *Writer[R]) RefreshOrDrop(ctx context.Context, ref *querystate.SelfRef[R]) (*Op, error) {
	return w.refresh(ctx, ref, KindRefreshOrDrop)
}

func (w *Writer[R]) refresh(ctx context.Context, ref *querystate.SelfRef[R], kind Kind) (*Op, error) {
	op := w.begin(kind, ref.ID())

	sel := selector.FromRecordID(ref.ID())
	sets, err := w.session.Transport().Query(transport.WithFreshRead(ctx), sel.WireQuery(), nil)
	if err != nil {
		return op, w.fail(op, transport.Wrap("query", err))
	}
	rs, err := transport.Take(sets, 0)
	if err != nil {
		return op, w.fail(op, err)
	}
	records, err := record.Decode[R](rs.Rows)
	if err != nil {
		return op, w.fail(op, err)
	}

	if len(records) > 0 {
		return op, w.apply(op, ref, &records[0], StateApplied)
	}
	if kind == KindRefreshOrDrop {
		return op, w.apply(op, ref, nil, StateDropped)
	}
	op.markUnchanged()
	return op, w.finish(op, StateApplied)
}

func (w *Writer[R]) begin(kind Kind, target record.ID) *Op {
	op := newOp(kind, target)
	// A fresh op is always Idle.
	_ = op.moveTo(StateSending)
	glog.V(2).Infof("reconcile: %s", op)
	return op
}

// apply writes the server's answer through ref and finishes op in state. A reference
// whose record already left the list, or whose entry is reloading, has nothing to
// apply: the server's copy is authoritative either way.
func (w *Writer[R]) apply(op *Op, ref *querystate.SelfRef[R], v *R, state State) error {
	if err := ref.Write(v); err != nil {
		if !errors.Is(err, querystate.ErrStaleRef) && !errors.Is(err, querystate.ErrNotReady) {
			return w.fail(op, err)
		}
		w.trace(op, err)
		op.markUnchanged()
	}
	return w.finish(op, state)
}

func (w *Writer[R]) finish(op *Op, state State) error {
	if err := op.moveTo(state); err != nil {
		return err
	}
	glog.V(2).Infof("reconcile: %s", op)
	return nil
}

// fail reports err and finishes op as Failed. It returns err.
func (w *Writer[R]) fail(op *Op, err error) error {
	op.setErr(err)
	_ = op.moveTo(StateFailed)
	w.sink.Report(err)
	return err
}

func (w *Writer[R]) trace(op *Op, err error) {
	glog.V(1).Infof("reconcile: %s: %v", op, err)
}
