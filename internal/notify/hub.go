package notify

import "sync"

// Hub fans published values out to every subscriber. Each subscriber owns
// an unbounded Queue, so Publish never blocks and every subscriber sees all
// values published after it subscribed, in publish order.
type Hub[T any] struct {
	mutex  sync.Mutex
	nextID int
	subs   map[int]*Queue[T]
	closed bool
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]*Queue[T])}
}

// Subscribe registers a new subscriber. The returned cancel func is
// idempotent; after it returns the channel is closed.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	q := NewQueue[T]()

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		q.Discard()
		return q.Out(), func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = q
	h.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mutex.Lock()
			delete(h.subs, id)
			h.mutex.Unlock()
			q.Discard()
		})
	}
	return q.Out(), cancel
}

// Publish delivers v to all current subscribers.
func (h *Hub[T]) Publish(v T) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, q := range h.subs {
		q.Push(v)
	}
}

// Close closes every subscriber channel after its pending values have been
// delivered. Later subscribers receive an already closed channel.
func (h *Hub[T]) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, q := range h.subs {
		q.Close()
		delete(h.subs, id)
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub[T]) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subs)
}
