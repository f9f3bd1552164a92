package aria2

import "sync"

type callResult struct {
	resp *Response
	err  error
}

// pendingTable correlates WebSocket responses with the calls awaiting them.
// Every entry is delivered at most once and removed on delivery.
type pendingTable struct {
	mu    sync.Mutex
	calls map[int64]chan callResult
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[int64]chan callResult)}
}

// add registers id. The returned channel receives exactly one result unless
// the entry is cancelled first.
func (t *pendingTable) add(id int64) <-chan callResult {
	ch := make(chan callResult, 1)
	t.mu.Lock()
	t.calls[id] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers resp to its caller. It returns false for unknown or
// already resolved ids.
func (t *pendingTable) resolve(id int64, resp *Response) bool {
	t.mu.Lock()
	ch, ok := t.calls[id]
	delete(t.calls, id)
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- callResult{resp: resp}
	return true
}

// cancel drops id without delivering anything.
func (t *pendingTable) cancel(id int64) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

// failAll rejects every outstanding call with err and empties the table.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]chan callResult)
	t.mu.Unlock()
	for _, ch := range calls {
		ch <- callResult{err: err}
	}
	return len(calls)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
