package aria2

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

const jsonRPCVersion = "2.0"

// Request is an outgoing JSON-RPC 2.0 request envelope.
type Request struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Response is an incoming JSON-RPC 2.0 response envelope. Exactly one of
// Result or Error is set.
type Response struct {
	ID      json.RawMessage `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorMsg       `json:"error,omitempty"`
}

// Notification is a server push. It carries no id.
type Notification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// ErrorMsg is the error member of a response envelope.
type ErrorMsg struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call is one [method, params...] tuple used by MultiCall and Batch.
type Call struct {
	Method string
	Params []any
}

// NewCall is shorthand for Call{Method: method, Params: params}.
func NewCall(method string, params ...any) Call {
	return Call{Method: method, Params: params}
}

// multicallEntry is one element of the system.multicall parameter array.
type multicallEntry struct {
	MethodName string `json:"methodName"`
	Params     []any  `json:"params"`
}

// Status is the state of a download job on the daemon.
type Status string

const (
	StatusActive   Status = "active"
	StatusWaiting  Status = "waiting"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
	StatusRemoved  Status = "removed"
)

// Valid reports whether s is one of the statuses aria2 documents.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWaiting, StatusPaused, StatusError, StatusComplete, StatusRemoved:
		return true
	}
	return false
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !Status(raw).Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	*s = Status(raw)
	return nil
}

// Job is a download as reported by tellStatus, tellActive and friends.
// Byte counts are decimal strings, exactly as the daemon sends them.
type Job struct {
	Gid             string      `json:"gid"`
	Status          Status      `json:"status"`
	TotalLength     string      `json:"totalLength"`
	CompletedLength string      `json:"completedLength"`
	DownloadSpeed   string      `json:"downloadSpeed"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	Bittorrent      *Bittorrent `json:"bittorrent,omitempty"`
	Files           []File      `json:"files"`
}

// Name picks a display name: the torrent name when present, else the first file path.
func (j Job) Name() string {
	if j.Bittorrent != nil && j.Bittorrent.Info.Name != "" {
		return j.Bittorrent.Info.Name
	}
	if len(j.Files) > 0 {
		return j.Files[0].Path
	}
	return j.Gid
}

type Bittorrent struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
}

type File struct {
	Index  string `json:"index,omitempty"`
	Path   string `json:"path"`
	Length string `json:"length,omitempty"`
}

// DownloadOptions is the subset of aria2 input options the extension sends with addUri.
type DownloadOptions struct {
	Out    string   `json:"out,omitempty"`
	Dir    string   `json:"dir,omitempty"`
	Header []string `json:"header,omitempty"`
}

// Event is delivered to handlers registered with Client.On.
type Event struct {
	Name string
	// Data is the raw wire text for input and output events.
	Data []byte
	// Params holds the notification params for server pushes.
	Params json.RawMessage
}

// GIDs returns the gids carried by a download notification ([{"gid":...}, ...]).
func (e Event) GIDs() []string {
	var gids []string
	gjson.GetBytes(e.Params, "#.gid").ForEach(func(_, v gjson.Result) bool {
		gids = append(gids, v.String())
		return true
	})
	return gids
}

// Handler receives client events.
type Handler func(Event)
