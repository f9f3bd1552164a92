package aria2

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	aria2Prefix  = "aria2."
	systemPrefix = "system."

	methodMulticall = "system.multicall"
)

// normalizeMethod puts bare method names in the aria2 namespace.
func normalizeMethod(method string) string {
	if strings.HasPrefix(method, aria2Prefix) || strings.HasPrefix(method, systemPrefix) {
		return method
	}
	return aria2Prefix + method
}

// stripPrefix removes a leading "aria2." if present.
func stripPrefix(name string) string {
	return strings.TrimPrefix(name, aria2Prefix)
}

// tokenParams prepends "token:<secret>" when a secret is configured. The
// input slice is never modified.
func tokenParams(secret string, params []any) []any {
	if secret == "" {
		if params == nil {
			return []any{}
		}
		return params
	}
	out := make([]any, 0, len(params)+1)
	out = append(out, "token:"+secret)
	return append(out, params...)
}

// newRequest builds a fully tagged envelope for one call.
func newRequest(id int64, secret, method string, params []any) *Request {
	return &Request{
		Jsonrpc: jsonRPCVersion,
		ID:      id,
		Method:  normalizeMethod(method),
		Params:  tokenParams(secret, params),
	}
}

// multicallParams builds the single system.multicall parameter: one
// {methodName, params} entry per call, each tagged individually.
func multicallParams(secret string, calls []Call) []multicallEntry {
	entries := make([]multicallEntry, 0, len(calls))
	for _, c := range calls {
		entries = append(entries, multicallEntry{
			MethodName: normalizeMethod(c.Method),
			Params:     tokenParams(secret, c.Params),
		})
	}
	return entries
}

func encodeRequest(req *Request) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Method, err)
	}
	return b, nil
}

type messageKind int

const (
	kindResponse messageKind = iota + 1
	kindNotification
)

// decodeMessage classifies one incoming frame. Anything with an id member is a
// response; anything else with a method is a notification.
func decodeMessage(b []byte) (messageKind, *Response, *Notification, error) {
	if !gjson.ValidBytes(b) {
		return 0, nil, nil, fmt.Errorf("%w: invalid json", ErrMalformedMessage)
	}
	if gjson.GetBytes(b, "id").Exists() {
		var resp Response
		if err := json.Unmarshal(b, &resp); err != nil {
			return 0, nil, nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return kindResponse, &resp, nil, nil
	}
	if gjson.GetBytes(b, "method").Exists() {
		var n Notification
		if err := json.Unmarshal(b, &n); err != nil {
			return 0, nil, nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return kindNotification, nil, &n, nil
	}
	return 0, nil, nil, fmt.Errorf("%w: neither id nor method", ErrMalformedMessage)
}

// decodeResponse parses an HTTP body, which must be a single response.
func decodeResponse(b []byte) (*Response, error) {
	kind, resp, _, err := decodeMessage(b)
	if err != nil {
		return nil, err
	}
	if kind != kindResponse {
		return nil, fmt.Errorf("%w: expected response", ErrMalformedMessage)
	}
	return resp, nil
}

// responseID reads the correlation id. aria2 echoes it as sent, but string
// ids holding an integer are accepted too.
func responseID(resp *Response) (int64, bool) {
	r := gjson.ParseBytes(resp.ID)
	switch r.Type {
	case gjson.Number:
		return r.Int(), true
	case gjson.String:
		id, err := strconv.ParseInt(r.Str, 10, 64)
		return id, err == nil
	}
	return 0, false
}

// result turns an envelope into its result or an *RPCError.
func (r *Response) result() (json.RawMessage, error) {
	if r.Error != nil {
		return nil, &RPCError{Code: r.Error.Code, Message: r.Error.Message}
	}
	return r.Result, nil
}

// unpackMulticall unwraps the per-call [result] arrays of a system.multicall
// result. The first fault in order fails the whole batch.
func unpackMulticall(raw json.RawMessage) ([]json.RawMessage, error) {
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: multicall result is not an array", ErrMalformedMessage)
	}
	elems := res.Array()
	out := make([]json.RawMessage, 0, len(elems))
	for i, el := range elems {
		if fault := faultOf(el, i); fault != nil {
			return nil, fault
		}
		if !el.IsArray() {
			return nil, fmt.Errorf("%w: multicall element %d is %s", ErrMalformedMessage, i, el.Type)
		}
		items := el.Array()
		if len(items) == 0 {
			return nil, &MultiCallFault{Index: i, Message: fmt.Sprintf("Call %d failed: empty result", i)}
		}
		if fault := faultOf(items[0], i); fault != nil {
			return nil, fault
		}
		out = append(out, json.RawMessage(items[0].Raw))
	}
	return out, nil
}

func faultOf(r gjson.Result, index int) *MultiCallFault {
	if !r.IsObject() {
		return nil
	}
	msg := r.Get("faultString")
	if !msg.Exists() {
		return nil
	}
	return &MultiCallFault{
		Index:   index,
		Code:    int(r.Get("faultCode").Int()),
		Message: msg.String(),
	}
}
