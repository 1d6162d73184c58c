// Package wsrpc is a transport.Transport that speaks JSON-RPC to the record server
// over a single websocket. Requests are correlated by id so any number of queries
// can be in flight on the one connection.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-querystate/logging"
	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/transport"
)

var (
	// ErrNotConnected is returned by calls made before Connect.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned to calls whose connection went away before they were answered.
	ErrClosed = errors.New("connection closed")
)

var (
	rpcRequests = metrics.GetOrCreateCounter("querystate_rpc_requests_total")
	rpcFailures = metrics.GetOrCreateCounter("querystate_rpc_failures_total")
)

var _ transport.Transport = (*Client)(nil)

type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[string, chan response]

	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed
}

func (conn *connection) close(err error) {
	conn.closeOnce.Do(func() {
		conn.err = err
		close(conn.done)
		conn.ws.Close()
	})
}

func (conn *connection) write(data []byte, timeout time.Duration) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if timeout > 0 {
		conn.ws.SetWriteDeadline(time.Now().Add(timeout))
	}
	return conn.ws.WriteMessage(websocket.TextMessage, data)
}

// Client is safe for concurrent use. Connect may be called again to replace the
// connection; calls pending on the old one fail with ErrClosed.
type Client struct {
	settings *Settings
	sink     logging.Sink

	mu   sync.Mutex
	conn *connection

	nextID atomic.Uint64
}

func NewClientWithDefaults(sink logging.Sink) *Client {
	return NewClient(sink, DefaultSettings())
}

func NewClient(sink logging.Sink, settings *Settings) *Client {
	if sink == nil {
		sink = logging.Discard
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Client{
		settings: settings,
		sink:     sink,
	}
}

func (c *Client) Connect(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return transport.Wrap("connect", err)
	}
	if c.settings.ReadLimit > 0 {
		ws.SetReadLimit(c.settings.ReadLimit)
	}

	conn := &connection{
		ws:      ws,
		pending: xsync.NewMapOf[string, chan response](),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.close(ErrClosed)
	}

	go c.readResponses(conn)

	glog.V(2).Infof("[rpc]connected %s", url)
	return nil
}

// Close shuts the current connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.close(ErrClosed)
	}
	return nil
}

func (c *Client) SignIn(ctx context.Context, creds transport.Credentials) (string, error) {
	result, err := c.call(ctx, methodSignIn, creds)
	if err != nil {
		return "", transport.Wrap("signin", err)
	}
	var token string
	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &token); err != nil {
			return "", transport.Wrap("signin", fmt.Errorf("decode token: %w", err))
		}
	}
	return token, nil
}

func (c *Client) Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error) {
	result, err := c.call(ctx, methodQuery, q.String(), vars.Map())
	if err != nil {
		return nil, transport.Wrap("query", err)
	}
	sets, err := decodeResultSets(result)
	if err != nil {
		return nil, transport.Wrap("query", err)
	}
	return sets, nil
}

func (c *Client) Merge(ctx context.Context, id record.ID, patch any) (json.RawMessage, error) {
	result, err := c.call(ctx, methodMerge, id.String(), patch)
	if err != nil {
		return nil, transport.Wrap("merge", err)
	}
	row, err := singleRecord(result)
	if err != nil {
		return nil, transport.Wrap("merge", err)
	}
	return row, nil
}

func (c *Client) Create(ctx context.Context, resource string, content any) (json.RawMessage, error) {
	result, err := c.call(ctx, methodCreate, resource, content)
	if err != nil {
		return nil, transport.Wrap("create", err)
	}
	row, err := singleRecord(result)
	if err != nil {
		return nil, transport.Wrap("create", err)
	}
	return row, nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok && c.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.RequestTimeout)
		defer cancel()
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	respCh := make(chan response, 1)
	conn.pending.Store(id, respCh)
	defer conn.pending.Delete(id)

	rpcRequests.Inc()
	c.sink.Trace(logging.OpSent, json.RawMessage(data))
	if err := conn.write(data, c.settings.WriteTimeout); err != nil {
		rpcFailures.Inc()
		conn.close(err)
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			rpcFailures.Inc()
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-conn.done:
		rpcFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrClosed, conn.err)
	case <-ctx.Done():
		rpcFailures.Inc()
		return nil, ctx.Err()
	}
}

func (c *Client) readResponses(conn *connection) {
	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			glog.V(2).Infof("[rpc]read ended: %v", err)
			conn.close(err)
			return
		}
		c.sink.Trace(logging.OpReceived, json.RawMessage(message))

		var resp response
		if err := json.Unmarshal(message, &resp); err != nil {
			glog.V(2).Infof("[rpc]dropping malformed frame: %v", err)
			continue
		}
		respCh, ok := conn.pending.LoadAndDelete(resp.ID)
		if !ok {
			// The caller gave up already.
			glog.V(2).Infof("[rpc]no pending request for id %q", resp.ID)
			continue
		}
		respCh <- resp
	}
}
