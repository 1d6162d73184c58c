package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/oklog/ulid/v2"

	"github.com/goliatone/go-querystate/record"
)

// ErrInvalidTransition is returned when an operation is moved outside its state machine.
var ErrInvalidTransition = errors.New("invalid operation state transition")

// Kind names a write operation.
type Kind string

const (
	KindUpdate        Kind = "update"
	KindPatch         Kind = "patch"
	KindCreate        Kind = "create"
	KindRefresh       Kind = "refresh"
	KindRefreshOrDrop Kind = "refresh_or_drop"
)

// State is the position of an operation in Idle -> Sending -> {Applied, Dropped, Failed}.
type State int

const (
	StateIdle State = iota
	StateSending
	StateApplied
	StateDropped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateApplied:
		return "applied"
	case StateDropped:
		return "dropped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateDropped || s == StateFailed
}

func (s State) canMoveTo(next State) bool {
	switch s {
	case StateIdle:
		return next == StateSending
	case StateSending:
		return next.Terminal()
	default:
		return false
	}
}

// Op records one write. Operations are never retried; a caller that wants another
// attempt starts a new one.
type Op struct {
	id   ulid.ULID
	kind Kind

	mu        sync.Mutex
	target    record.ID
	state     State
	err       error
	unchanged bool
}

func newOp(kind Kind, target record.ID) *Op {
	return &Op{id: ulid.Make(), kind: kind, target: target}
}

func (o *Op) ID() ulid.ULID {
	return o.id
}

func (o *Op) Kind() Kind {
	return o.kind
}

// Target is the record written. For a create it is set once the server assigned it.
func (o *Op) Target() record.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

func (o *Op) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err is the failure of a Failed operation.
func (o *Op) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Unchanged reports whether the operation finished without touching the local list,
// for example a refresh of a record that vanished.
func (o *Op) Unchanged() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unchanged
}

func (o *Op) String() string {
	return fmt.Sprintf("%s %s %s (%s)", o.kind, o.Target(), o.State(), o.id)
}

func (o *Op) moveTo(next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.canMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.state, next)
	}
	o.state = next
	if next.Terminal() {
		metrics.GetOrCreateCounter(fmt.Sprintf(`querystate_write_ops_total{kind=%q,state=%q}`, o.kind, next)).Inc()
	}
	return nil
}

func (o *Op) setTarget(id record.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = id
}

func (o *Op) markUnchanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unchanged = true
}

func (o *Op) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}
