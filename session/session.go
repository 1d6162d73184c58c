// Package session holds the connection to the record server and whether it is ready
// to serve queries. Query state waits for readiness before fetching.
package session

import (
	"context"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/golang/glog"

	"github.com/goliatone/go-querystate/logging"
	"github.com/goliatone/go-querystate/scope"
	"github.com/goliatone/go-querystate/transport"
)

var (
	signInOK     = metrics.GetOrCreateCounter(`querystate_session_signins_total{result="ok"}`)
	signInFailed = metrics.GetOrCreateCounter(`querystate_session_signins_total{result="failed"}`)
)

type subscriber struct {
	id uint64
	fn func(ready bool)
}

// Session is shared by every query and write issued under it. It is safe for
// concurrent use.
type Session struct {
	transport transport.Transport
	sink      logging.Sink

	mu          sync.Mutex
	ready       bool
	token       string
	claims      Claims
	attempt     uint64
	subscribers []subscriber
	nextSubID   uint64
}

// Option configures a Session.
type Option func(*Session)

// WithSink routes sign-in failures to sink instead of the default glog sink.
func WithSink(sink logging.Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

func New(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		sink:      logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Transport() transport.Transport {
	return s.transport
}

func (s *Session) Sink() logging.Sink {
	return s.sink
}

// SignIn connects to url and signs in with creds. On success the session becomes ready
// and subscribers are told. On failure the error is reported and returned, the session
// stays not ready and nothing is retried.
//
// Signing in again first marks the session not ready. When sign-ins overlap only the
// last one started may make the session ready.
func (s *Session) SignIn(ctx context.Context, url string, creds transport.Credentials) error {
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()
	s.setReady(false, "", Claims{}, 0)

	if err := s.transport.Connect(ctx, url); err != nil {
		return s.fail(transport.Wrap("connect", err))
	}
	token, err := s.transport.SignIn(ctx, creds)
	if err != nil {
		return s.fail(transport.Wrap("signin", err))
	}

	claims, err := ParseClaims(token)
	if err != nil {
		// The token stays usable by the server even when we cannot read it.
		glog.Warningf("session: unreadable token claims: %v", err)
	}

	signInOK.Inc()
	s.setReady(true, token, claims, attempt)
	return nil
}

// SignInAsync runs SignIn on a goroutine. The channel yields its result and is closed.
func (s *Session) SignInAsync(ctx context.Context, url string, creds transport.Credentials) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.SignIn(ctx, url, creds)
	}()
	return done
}

func (s *Session) fail(err error) error {
	signInFailed.Inc()
	s.sink.Report(err)
	return err
}

// setReady applies a readiness change and notifies subscribers when it flips.
// A non-zero attempt must still be the latest sign-in for the change to apply.
func (s *Session) setReady(ready bool, token string, claims Claims, attempt uint64) {
	s.mu.Lock()
	if attempt != 0 && attempt != s.attempt {
		s.mu.Unlock()
		return
	}
	changed := s.ready != ready
	s.ready = ready
	s.token = token
	s.claims = claims
	subs := append([]subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, sub := range subs {
		sub.fn(ready)
	}
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Claims returns the claims of the current token. They are zero until signed in.
func (s *Session) Claims() Claims {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe calls fn on every readiness change until cancel is called.
func (s *Session) Subscribe(fn func(ready bool)) (cancel func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// WithSession returns a child context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return scope.With(ctx, Require(s))
}

// FromContext returns the session carried by ctx. It panics with
// *scope.MissingContextError when there is none.
func FromContext(ctx context.Context) *Session {
	return scope.Must[*Session](ctx, "session", "wrap the context with session.WithSession")
}

// Require returns s and panics with *scope.MissingContextError when it is nil.
func Require(s *Session) *Session {
	if s == nil {
		panic(&scope.MissingContextError{Name: "session", Hint: "construct it with session.New"})
	}
	return s
}
