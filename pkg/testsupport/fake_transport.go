package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/transport"
)

// Call is one recorded transport invocation.
type Call struct {
	Method   string
	URL      string
	Query    string
	Vars     ql.Vars
	ID       record.ID
	Resource string
	Payload  any
}

// FakeTransport is a scriptable transport.Transport that records every call.
// Unset hooks fall back to permissive defaults.
type FakeTransport struct {
	ConnectFn func(ctx context.Context, url string) error
	SignInFn  func(ctx context.Context, creds transport.Credentials) (string, error)
	QueryFn   func(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error)
	MergeFn   func(ctx context.Context, id record.ID, patch any) (json.RawMessage, error)
	CreateFn  func(ctx context.Context, resource string, content any) (json.RawMessage, error)

	mu    sync.Mutex
	calls []Call
	gate  chan struct{}
}

var _ transport.Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Hold makes every following Query block until the returned release func is called.
func (f *FakeTransport) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeTransport) record(c Call) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.gate
}

// Calls returns a copy of the recorded calls.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts recorded calls of method.
func (f *FakeTransport) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call of method.
func (f *FakeTransport) LastCall(method string) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i], true
		}
	}
	return Call{}, false
}

// Reset clears recorded calls.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeTransport) Connect(ctx context.Context, url string) error {
	f.record(Call{Method: "Connect", URL: url})
	if f.ConnectFn != nil {
		return f.ConnectFn(ctx, url)
	}
	return nil
}

func (f *FakeTransport) SignIn(ctx context.Context, creds transport.Credentials) (string, error) {
	f.record(Call{Method: "SignIn", Payload: creds})
	if f.SignInFn != nil {
		return f.SignInFn(ctx, creds)
	}
	return "", nil
}

func (f *FakeTransport) Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error) {
	gate := f.record(Call{Method: "Query", Query: q.String(), Vars: vars})
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.QueryFn != nil {
		return f.QueryFn(ctx, q, vars)
	}
	sets := make([]transport.ResultSet, len(q.Statements))
	for i := range sets {
		sets[i] = OK()
	}
	return sets, nil
}

func (f *FakeTransport) Merge(ctx context.Context, id record.ID, patch any) (json.RawMessage, error) {
	f.record(Call{Method: "Merge", ID: id, Payload: patch})
	if f.MergeFn != nil {
		return f.MergeFn(ctx, id, patch)
	}
	return json.Marshal(patch)
}

func (f *FakeTransport) Create(ctx context.Context, resource string, content any) (json.RawMessage, error) {
	f.record(Call{Method: "Create", Resource: resource, Payload: content})
	if f.CreateFn != nil {
		return f.CreateFn(ctx, resource, content)
	}
	return json.Marshal(content)
}

// Rows marshals values into raw result rows. It panics on values JSON cannot encode.
func Rows(values ...any) []json.RawMessage {
	rows := make([]json.RawMessage, len(values))
	for i, v := range values {
		rows[i] = JSON(v)
	}
	return rows
}

// JSON marshals v, panicking on failure.
func JSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testsupport: marshal %T: %v", v, err))
	}
	return data
}

// OK builds a successful result set.
func OK(rows ...any) transport.ResultSet {
	return transport.ResultSet{Status: transport.StatusOK, Rows: Rows(rows...)}
}

// Failed builds a failed result set.
func Failed(detail string) transport.ResultSet {
	return transport.ResultSet{Status: transport.StatusErr, Detail: detail}
}
