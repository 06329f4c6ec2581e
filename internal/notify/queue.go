package notify

import "sync"

// Queue is an unbounded FIFO that hands values to a single consumer through
// Out. Push never blocks, so a producer running on a state machine goroutine
// cannot be stalled by a slow consumer.
type Queue[T any] struct {
	mutex  sync.Mutex
	items  []T
	closed bool

	wake      chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
	out       chan T
	done      chan struct{}
}

// NewQueue creates a queue and starts its delivery goroutine.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		wake:  make(chan struct{}, 1),
		abort: make(chan struct{}),
		out:   make(chan T),
		done:  make(chan struct{}),
	}
	go q.deliver()
	return q
}

// Push appends v. Values pushed after Close are dropped.
func (q *Queue[T]) Push(v T) {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mutex.Unlock()

	q.signal()
}

// Out returns the consumer channel. It is closed once the queue is closed
// and every pending value has been delivered, or right after Discard.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Close stops accepting values. Pending values are still delivered.
func (q *Queue[T]) Close() {
	q.mutex.Lock()
	q.closed = true
	q.mutex.Unlock()

	q.signal()
}

// Discard closes the queue, drops undelivered values and waits for the
// delivery goroutine to exit.
func (q *Queue[T]) Discard() {
	q.mutex.Lock()
	q.closed = true
	q.items = nil
	q.mutex.Unlock()

	q.abortOnce.Do(func() { close(q.abort) })
	<-q.done
}

// Len reports how many values are waiting for the consumer.
func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) deliver() {
	defer close(q.done)
	defer close(q.out)

	for {
		q.mutex.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mutex.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.abort:
				return
			}
		}

		v := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mutex.Unlock()

		select {
		case q.out <- v:
		case <-q.abort:
			return
		}
	}
}
