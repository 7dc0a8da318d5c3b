package identity

import "sync"

type event struct {
	kind    EventKind
	session *Session
}

type subscriber struct {
	events  chan event
	done    chan struct{}
	handler Handler
}

// hub fans session events out to subscribers. Each subscriber gets its own
// dispatch goroutine so handlers run serially, in production order, without
// blocking the emitter or each other.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]*subscriber)}
}

func (h *hub) subscribe(handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return func() {}
	}

	id := h.nextID
	h.nextID++

	sub := &subscriber{
		events:  make(chan event, 16),
		done:    make(chan struct{}),
		handler: handler,
	}
	h.subs[id] = sub

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.events:
			// Re-check teardown so no handler fires after unsubscribe.
			select {
			case <-sub.done:
				return
			default:
			}
			sub.handler(ev.kind, ev.session)
		}
	}
}

func (h *hub) emit(kind EventKind, session *Session) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.events <- event{kind: kind, session: session}:
		case <-sub.done:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.done)
	}
}
