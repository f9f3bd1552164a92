package aria2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
)

// Client talks JSON-RPC to one aria2 daemon. Calls go over the WebSocket
// while one is open and fall back to HTTP POST otherwise. A Client is safe
// for concurrent use.
type Client struct {
	cfg    Config
	log    *slog.Logger
	dialer *websocket.Dialer
	events *eventBus
	http   *httpRequestHandler

	// nextID is shared by both transports so ids stay unique per client.
	nextID atomic.Int64

	openMu sync.Mutex // serializes Open and Close
	mu     sync.Mutex // guards ws
	ws     *websocketRequestHandler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPClient replaces the fasthttp client used for HTTP calls.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.client = hc
		}
	}
}

// WithDialer replaces the WebSocket dialer used by Open.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// NewClient validates cfg and returns a client in HTTP mode. No connection
// is made until the first call or Open.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		log:    slog.New(slog.DiscardHandler),
		dialer: websocket.DefaultDialer,
		events: newEventBus(),
	}
	c.http = &httpRequestHandler{
		url:    cfg.HTTPURL(),
		client: &fasthttp.Client{Name: "aria2link"},
		emit:   c.events.emit,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "aria2", "endpoint", cfg.hostPort())
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Open connects the WebSocket transport. It is a no-op when already open.
func (c *Client) Open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.websocket() != nil {
		return nil
	}

	url := c.cfg.WebsocketURL()
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return &ConnectionError{URL: url, Err: err}
	}
	h := newWebsocketRequestHandler(conn, c.log, c.events.emit, c.detach)
	c.mu.Lock()
	c.ws = h
	c.mu.Unlock()
	c.log.Debug("websocket open", "url", url)
	return nil
}

// Close closes the WebSocket transport if open and waits for its reader to
// stop. Calls still pending fail with ErrConnectionClosed. Close is
// idempotent; later calls use HTTP.
func (c *Client) Close() error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if h := c.websocket(); h != nil {
		h.close()
		c.log.Debug("websocket closed")
	}
	return nil
}

// IsOpen reports whether calls currently go over the WebSocket.
func (c *Client) IsOpen() bool {
	return c.websocket() != nil
}

func (c *Client) websocket() *websocketRequestHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil && c.ws.isOpen() {
		return c.ws
	}
	return nil
}

func (c *Client) detach(h *websocketRequestHandler) {
	c.mu.Lock()
	if c.ws == h {
		c.ws = nil
	}
	c.mu.Unlock()
}

// handler picks the transport for one call.
func (c *Client) handler() RequestHandler {
	if ws := c.websocket(); ws != nil {
		return ws
	}
	return c.http
}

// Call invokes method and returns the raw result. Bare method names are
// sent as "aria2.<method>"; the secret token is prepended to params.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	req := newRequest(c.nextID.Add(1), c.cfg.Secret, method, params)
	return c.send(ctx, req)
}

// CallInto is Call followed by unmarshalling the result into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", normalizeMethod(method), err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req *Request) (json.RawMessage, error) {
	timeout := c.cfg.callTimeout()
	_, hasDeadline := ctx.Deadline()
	defaulted := timeout > 0 && !hasDeadline
	if defaulted {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.handler().SendRequest(ctx, req)
	if err != nil {
		if defaulted && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrCallTimeout, req.Method, timeout)
		}
		return nil, err
	}
	return resp.result()
}

// MultiCall sends every call in one system.multicall request and returns
// the results in order. The first failed sub-call fails the whole batch
// with a *MultiCallFault.
func (c *Client) MultiCall(ctx context.Context, calls ...Call) ([]json.RawMessage, error) {
	raw, err := c.Call(ctx, methodMulticall, multicallParams(c.cfg.Secret, calls))
	if err != nil {
		return nil, err
	}
	return unpackMulticall(raw)
}

// Pending is the result of one call started by Batch.
type Pending struct {
	Call   Call
	done   chan struct{}
	result json.RawMessage
	err    error
}

// Done is closed once the call has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call finishes and returns its outcome.
func (p *Pending) Wait() (json.RawMessage, error) {
	<-p.done
	return p.result, p.err
}

// Batch starts one independent call per element. Unlike MultiCall nothing
// is bundled: each call resolves or fails on its own.
func (c *Client) Batch(ctx context.Context, calls ...Call) []*Pending {
	out := make([]*Pending, len(calls))
	for i, call := range calls {
		p := &Pending{Call: call, done: make(chan struct{})}
		out[i] = p
		go func() {
			defer close(p.done)
			p.result, p.err = c.Call(ctx, call.Method, call.Params...)
		}()
	}
	return out
}

// On registers h for an event and returns a function that removes it.
// Events are "open", "close", "input", "output" and every daemon
// notification, raised both as "aria2.onDownloadStart" and "onDownloadStart".
// Events coming from the socket are delivered on one goroutine in arrival
// order; handlers may issue calls.
func (c *Client) On(event string, h Handler) func() {
	return c.events.on(event, h)
}

func (c *Client) OnDownloadStart(h Handler) func() {
	return c.On("aria2.onDownloadStart", h)
}

func (c *Client) OnDownloadPause(h Handler) func() {
	return c.On("aria2.onDownloadPause", h)
}

func (c *Client) OnDownloadStop(h Handler) func() {
	return c.On("aria2.onDownloadStop", h)
}

func (c *Client) OnDownloadComplete(h Handler) func() {
	return c.On("aria2.onDownloadComplete", h)
}

func (c *Client) OnDownloadError(h Handler) func() {
	return c.On("aria2.onDownloadError", h)
}

func (c *Client) OnBtDownloadComplete(h Handler) func() {
	return c.On("aria2.onBtDownloadComplete", h)
}

// pendingCalls counts WebSocket calls awaiting a response.
func (c *Client) pendingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return 0
	}
	return c.ws.pending.len()
}
