package querystate

import (
	"errors"
)

var (
	// ErrNotReady is returned by local edits on an entry that has no records yet.
	ErrNotReady = errors.New("query state is not ready")
	// ErrIndexOutOfRange is returned by ReplaceAt for an index outside the list.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrStaleRef is returned when a self-reference's record is no longer in the list.
	ErrStaleRef = errors.New("record is no longer in the list")
)

// Phase is the lifecycle position of an entry.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settled reports whether the phase is final until the next reload.
func (p Phase) Settled() bool {
	return p == PhaseReady || p == PhaseFailed
}

// State is a snapshot of an entry. Records is a copy owned by the caller and is only
// set when Phase is PhaseReady; Err is only set when Phase is PhaseFailed.
type State[R any] struct {
	Phase   Phase
	Records []R
	Err     error
}

func (s State[R]) Ready() bool {
	return s.Phase == PhaseReady
}
