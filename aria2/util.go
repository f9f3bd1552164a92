package aria2

import (
	"bytes"
	"sync"
)

// addOptionsAndPosition appends the optional trailing arguments shared by the
// add* methods. A position without options needs an empty options struct in
// front of it.
func addOptionsAndPosition(params []any, options map[string]any, position *int) []any {
	if options != nil || position != nil {
		if options == nil {
			options = map[string]any{}
		}
		params = append(params, options)
	}
	if position != nil {
		params = append(params, *position)
	}
	return params
}

func addKeys(params []any, keys []string) []any {
	if len(keys) > 0 {
		params = append(params, keys)
	}
	return params
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

func newBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	// See https://golang.org/issue/23199
	const maxSize = 1 << 16
	if buf.Cap() < maxSize {
		buf.Reset()
		bufferPool.Put(buf)
	}
}
