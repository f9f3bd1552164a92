// Package nativehost speaks the browser native messaging protocol on behalf
// of the extension: each message is a 4-byte little-endian length followed
// by that many bytes of JSON.
package nativehost

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxMessageSize is the largest payload a browser will send to a host.
const MaxMessageSize = 1 << 20

// Request is one message from the extension.
type Request struct {
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     int    `json:"id"`
	Ok     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Notification is pushed to the extension unprompted.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", length, MaxMessageSize)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func WriteMessage(w io.Writer, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(msg), MaxMessageSize)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(msg))); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

func ParseRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func successResponse(id int, result any) Response {
	return Response{ID: id, Ok: true, Result: result}
}

func errorResponse(id int, err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{ID: id, Error: msg}
}

// Writer frames values onto the output stream. It is safe for concurrent
// use, so responses and notifications never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send encodes v as JSON and writes one message.
func (w *Writer) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteMessage(w.w, b)
}

// Notify pushes a notification message, which lets a Writer serve as the
// job manager's notifier.
func (w *Writer) Notify(_ context.Context, message string) error {
	return w.Send(Notification{Type: "notification", Message: message})
}
