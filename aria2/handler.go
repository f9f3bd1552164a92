package aria2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
)

// closeGrace is how long Close waits for the daemon to echo the close frame.
const closeGrace = 2 * time.Second

// RequestHandler is one transport: it sends a request envelope and returns
// the matching response envelope.
type RequestHandler interface {
	SendRequest(ctx context.Context, req *Request) (*Response, error)
}

// httpRequestHandler performs one stateless POST per call.
type httpRequestHandler struct {
	url    string
	client *fasthttp.Client
	emit   func(Event) bool
}

func (h *httpRequestHandler) SendRequest(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpreq := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(httpreq)
	httpreq.SetRequestURI(h.url)
	httpreq.Header.SetMethod(fasthttp.MethodPost)
	httpreq.Header.SetContentType("application/json")
	httpreq.SetBody(body)

	httpresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(httpresp)

	h.emit(Event{Name: EventOutput, Data: body})
	if deadline, ok := ctx.Deadline(); ok {
		err = h.client.DoDeadline(httpreq, httpresp, deadline)
	} else {
		err = h.client.Do(httpreq, httpresp)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, context.DeadlineExceeded
		}
		return nil, &TransportError{Err: err}
	}
	if code := httpresp.StatusCode(); code < 200 || code > 299 {
		return nil, &TransportError{StatusCode: code}
	}

	data := bytes.Clone(httpresp.Body())
	h.emit(Event{Name: EventInput, Data: data})
	resp, err := decodeResponse(data)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

// websocketRequestHandler owns one open socket, its pending calls and the
// goroutines that read from it and dispatch its events.
type websocketRequestHandler struct {
	conn    *websocket.Conn
	log     *slog.Logger
	pending *pendingTable
	emit    func(Event) bool
	queue   *eventQueue
	onClose func(*websocketRequestHandler)

	writeMu   sync.Mutex
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
}

func newWebsocketRequestHandler(conn *websocket.Conn, log *slog.Logger, emit func(Event) bool, onClose func(*websocketRequestHandler)) *websocketRequestHandler {
	h := &websocketRequestHandler{
		conn:    conn,
		log:     log,
		pending: newPendingTable(),
		emit:    emit,
		queue:   newEventQueue(),
		onClose: onClose,
		done:    make(chan struct{}),
	}
	h.queue.push(Event{Name: EventOpen})
	go h.queue.run(emit)
	go h.listen()
	return h
}

func (h *websocketRequestHandler) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *websocketRequestHandler) SendRequest(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := h.pending.add(req.ID)
	// shutdown closes done before failing the table, so a call registered
	// after that sweep is caught here.
	if !h.isOpen() {
		h.pending.cancel(req.ID)
		return nil, ErrConnectionClosed
	}

	h.emit(Event{Name: EventOutput, Data: body})
	if err := h.write(ctx, body); err != nil {
		h.pending.cancel(req.ID)
		h.log.Debug("websocket write failed", "method", req.Method, "id", req.ID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		h.pending.cancel(req.ID)
		return nil, ctx.Err()
	}
}

func (h *websocketRequestHandler) write(ctx context.Context, body []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := h.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return h.conn.WriteMessage(websocket.TextMessage, body)
}

func (h *websocketRequestHandler) listen() {
	defer h.shutdown()
	for {
		t, reader, err := h.conn.NextReader()
		if err != nil {
			if !h.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("websocket read failed", "err", err)
			}
			return
		}
		if t != websocket.TextMessage {
			h.log.Debug("ignoring non-text websocket frame", "type", t)
			continue
		}
		buffer := newBuffer()
		if _, err := buffer.ReadFrom(reader); err != nil {
			putBuffer(buffer)
			h.log.Warn("websocket read failed", "err", err)
			return
		}
		data := bytes.Clone(buffer.Bytes())
		putBuffer(buffer)
		h.handleMessage(data)
	}
}

func (h *websocketRequestHandler) handleMessage(data []byte) {
	h.queue.push(Event{Name: EventInput, Data: data})

	kind, resp, note, err := decodeMessage(data)
	if err != nil {
		h.log.Warn("dropping websocket message", "err", err)
		return
	}
	switch kind {
	case kindResponse:
		id, ok := responseID(resp)
		if !ok || !h.pending.resolve(id, resp) {
			h.log.Debug("dropping response without pending call", "id", string(resp.ID))
		}
	case kindNotification:
		h.queue.push(Event{Name: note.Method, Params: note.Params})
		if short := stripPrefix(note.Method); short != note.Method {
			h.queue.push(Event{Name: short, Params: note.Params})
		}
	}
}

// shutdown runs once, when the read loop exits for any reason.
func (h *websocketRequestHandler) shutdown() {
	close(h.done)
	if n := h.pending.failAll(ErrConnectionClosed); n > 0 {
		h.log.Info("rejected pending calls on close", "count", n)
	}
	h.conn.Close()
	if h.onClose != nil {
		h.onClose(h)
	}
	h.queue.push(Event{Name: EventClose})
	h.queue.close()
}

// close sends a close frame and waits for the read loop to finish.
func (h *websocketRequestHandler) close() {
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
			h.log.Debug("close frame not sent", "err", err)
			h.conn.Close()
		}
	})
	select {
	case <-h.done:
	case <-time.After(closeGrace):
		h.conn.Close()
		<-h.done
	}
}
