package testsupport

import (
	"sync"

	"github.com/goliatone/go-querystate/logging"
)

// Trace is one recorded trace.
type Trace struct {
	Op      string
	Payload any
}

// RecordingSink is a logging.Sink that keeps everything it receives.
type RecordingSink struct {
	mu     sync.Mutex
	errors []error
	traces []Trace
}

var _ logging.Sink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Report(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *RecordingSink) Trace(op string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, Trace{Op: op, Payload: payload})
}

func (s *RecordingSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}

func (s *RecordingSink) Traces() []Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Trace(nil), s.traces...)
}

// TraceOps lists the recorded trace operations in order.
func (s *RecordingSink) TraceOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.traces))
	for i, t := range s.traces {
		ops[i] = t.Op
	}
	return ops
}
