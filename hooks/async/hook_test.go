package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/kvcache"
)

type countHooks struct {
	kvcache.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (c *countHooks) record(ev string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *countHooks) DecodeFailed(k string, _ error)   { c.record("decode:" + k) }
func (c *countHooks) RememberMiss(k string)            { c.record("miss:" + k) }
func (c *countHooks) StoreError(op, _ string, _ error) { c.record("err:" + op) }

func TestDeliversAllBeforeClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 16)

	h.DecodeFailed("a", errors.New("x"))
	h.RememberMiss("b")
	h.StoreError("get", "c", errors.New("down"))
	h.ExpiredOnWrite("d") // no-op on inner
	h.Close()

	if len(inner.events) != 3 {
		t.Fatalf("events=%v", inner.events)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFullAndAfterClose(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// worker takes the first event and blocks; the second fills the queue
	h.RememberMiss("1")
	h.RememberMiss("2")
	h.RememberMiss("3")
	h.RememberMiss("4")
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}

	close(inner.block)
	h.Close()
	before := h.Dropped()
	h.RememberMiss("late")
	if h.Dropped() != before+1 {
		t.Fatalf("event after Close should be dropped")
	}
}
