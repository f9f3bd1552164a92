package aria2

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed rejects calls still pending when the socket goes away.
	ErrConnectionClosed = errors.New("aria2: connection closed")
	// ErrCallTimeout is returned when the default per-call timeout expires.
	ErrCallTimeout = errors.New("aria2: call timed out")
	// ErrUnknownStatus marks a job status outside the documented set.
	ErrUnknownStatus = errors.New("aria2: unknown job status")
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("aria2: invalid config")
	// ErrMalformedMessage is returned for frames that are neither a response nor a notification.
	ErrMalformedMessage = errors.New("aria2: malformed message")
)

// ConnectionError is returned by Open when the WebSocket handshake fails.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("aria2: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports an HTTP exchange that failed at the network layer
// (StatusCode 0) or returned a status outside 200-299.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("aria2: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("aria2: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error member returned by the daemon.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return e.Message
}

// MultiCallFault is returned by MultiCall when one sub-call failed. Error
// returns the daemon's faultString unchanged.
type MultiCallFault struct {
	Index   int
	Code    int
	Message string
}

func (e *MultiCallFault) Error() string {
	return e.Message
}
