package aria2

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wireRequest is a request as seen by the fake daemon.
type wireRequest struct {
	Jsonrpc string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func (r wireRequest) param(i int) string {
	if i >= len(r.Params) {
		return ""
	}
	var s string
	_ = json.Unmarshal(r.Params[i], &s)
	return s
}

// reply builds a response object; handlers return nil to stay silent.
func reply(req wireRequest, result any) any {
	return map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
}

func replyError(req wireRequest, code int, msg string) any {
	return map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": code, "message": msg}}
}

// fakeDaemon is an aria2 stand-in serving JSON-RPC over HTTP POST and
// WebSocket on the same path.
type fakeDaemon struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	handle    func(wireRequest) any
	httpReqs  []wireRequest
	wsReqs    []wireRequest
	conns     []*websocket.Conn
	connReady chan *websocket.Conn
	status    int
}

func newFakeDaemon(t *testing.T, handle func(wireRequest) any) *fakeDaemon {
	t.Helper()
	d := &fakeDaemon{t: t, handle: handle, connReady: make(chan *websocket.Conn, 4)}
	d.srv = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.close)
	return d
}

func (d *fakeDaemon) config() Config {
	addr := d.srv.Listener.Addr().(*net.TCPAddr)
	return Config{Host: "127.0.0.1", Port: addr.Port}
}

func (d *fakeDaemon) client(t *testing.T, cfg Config) *Client {
	t.Helper()
	base := d.config()
	cfg.Host, cfg.Port = base.Host, base.Port
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (d *fakeDaemon) setStatus(code int) {
	d.mu.Lock()
	d.status = code
	d.mu.Unlock()
}

func (d *fakeDaemon) httpRequests() []wireRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wireRequest(nil), d.httpReqs...)
}

func (d *fakeDaemon) wsRequests() []wireRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wireRequest(nil), d.wsReqs...)
}

func (d *fakeDaemon) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		d.serveWebsocket(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req wireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	d.httpReqs = append(d.httpReqs, req)
	status := d.status
	d.mu.Unlock()
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.handle(req))
}

func (d *fakeDaemon) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.t.Errorf("upgrade: %v", err)
		return
	}
	var writeMu sync.Mutex
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	d.connReady <- conn
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wireRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		d.mu.Lock()
		d.wsReqs = append(d.wsReqs, req)
		d.mu.Unlock()
		if resp := d.handle(req); resp != nil {
			writeMu.Lock()
			_ = conn.WriteJSON(resp)
			writeMu.Unlock()
		}
	}
}

// awaitConn returns the server side of the next WebSocket connection.
func (d *fakeDaemon) awaitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-d.connReady:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func (d *fakeDaemon) close() {
	d.mu.Lock()
	for _, c := range d.conns {
		c.Close()
	}
	d.mu.Unlock()
	d.srv.Close()
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
