package aria2

import "sync"

// Event names raised by the client itself. Notifications use the method name
// sent by the daemon, e.g. "aria2.onDownloadStart" and "onDownloadStart".
const (
	EventOpen   = "open"
	EventClose  = "close"
	EventInput  = "input"
	EventOutput = "output"
)

type subscription struct {
	id int
	h  Handler
}

// eventBus maps event names to handlers in registration order.
type eventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   int
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[string][]subscription)}
}

func (b *eventBus) on(name string, h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[name] = append(b.handlers[name], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.off(name, id) })
	}
}

func (b *eventBus) off(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[name]
	kept := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.handlers, name)
		return
	}
	b.handlers[name] = kept
}

// emit calls the handlers registered for ev.Name when emit started.
// Subscribing or unsubscribing from a handler affects later emits only.
func (b *eventBus) emit(ev Event) bool {
	b.mu.RLock()
	subs := b.handlers[ev.Name]
	b.mu.RUnlock()
	for _, s := range subs {
		s.h(ev)
	}
	return len(subs) > 0
}

// eventQueue hands events from a socket reader to a dispatcher goroutine in
// arrival order without ever blocking the reader.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.cond.Signal()
}

// close lets run return once the queued events are drained.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *eventQueue) run(emit func(Event) bool) {
	q.mu.Lock()
	for {
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		items := q.items
		q.items = nil
		q.mu.Unlock()
		for _, ev := range items {
			emit(ev)
		}
		q.mu.Lock()
	}
}
