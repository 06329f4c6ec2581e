package notify

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestQueue_DeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	q.Close()

	want := 0
	for v := range q.Out() {
		if v != want {
			t.Fatalf("Expected %d, got %d", want, v)
		}
		want++
	}
	if want != 100 {
		t.Errorf("Expected 100 values, got %d", want)
	}
}

func TestQueue_PushAfterCloseIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue[string]()
	q.Push("a")
	q.Close()
	q.Push("b")

	var got []string
	for v := range q.Out() {
		got = append(got, v)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected [a], got %v", got)
	}
}

func TestQueue_DiscardUnblocksPendingDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)

	done := make(chan struct{})
	go func() {
		q.Discard()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Discard did not return")
	}

	// Discard is idempotent.
	q.Discard()
}

func TestHub_FanOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := NewHub[int]()
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	h.Publish(7)
	h.Publish(8)

	for _, ch := range []<-chan int{a, b} {
		if v := <-ch; v != 7 {
			t.Errorf("Expected 7, got %d", v)
		}
		if v := <-ch; v != 8 {
			t.Errorf("Expected 8, got %d", v)
		}
	}
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := NewHub[int]()
	ch, cancel := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", h.Subscribers())
	}

	cancel()
	cancel()

	if h.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", h.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after cancel")
	}

	h.Publish(1) // must not panic or block
}

func TestHub_CloseDrainsThenCloses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := NewHub[string]()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish("last")
	h.Close()

	if v := <-ch; v != "last" {
		t.Errorf("Expected pending value to be delivered, got %q", v)
	}
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}

	late, lateCancel := h.Subscribe()
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Error("Expected subscription on closed hub to be closed")
	}
}
