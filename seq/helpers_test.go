package seq_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"go-midiseq/hub"
	"go-midiseq/seq"
)

func newHub(t *testing.T, opts ...hub.Option) (*hub.Hub, clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	h := hub.New(append([]hub.Option{hub.WithClock(fc)}, opts...)...)
	t.Cleanup(h.Shutdown)
	return h, fc
}

func openClient(t *testing.T, h *hub.Hub, opts ...seq.Option) *seq.Client {
	t.Helper()
	c, err := seq.Open(h, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// loopback creates a port the client can send to itself through.
func loopback(t *testing.T, c *seq.Client) *seq.Port {
	t.Helper()
	p, err := c.CreatePort("loop", seq.CapRead|seq.CapWrite, seq.PortTypeMIDIGeneric|seq.PortTypeApplication)
	if err != nil {
		t.Fatalf("CreatePort failed: %v", err)
	}
	return p
}

func allocQueue(t *testing.T, c *seq.Client) *seq.Queue {
	t.Helper()
	q, err := c.AllocQueue()
	if err != nil {
		t.Fatalf("AllocQueue failed: %v", err)
	}
	return q
}

func noteTo(p *seq.Port, note uint8) *seq.Event {
	ev := seq.NewEvent()
	ev.SetSource(p)
	ev.SetDestination(p.Addr())
	ev.SetNoteOn(0, note, 100)
	return ev
}

// receive does a blocking Receive with a timeout.
func receive(t *testing.T, c *seq.Client) *seq.Event {
	t.Helper()
	type result struct {
		ev  *seq.Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := c.Receive()
		ch <- result{ev, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Receive failed: %v", r.err)
		}
		if r.ev == nil {
			t.Fatal("Receive returned no event")
		}
		return r.ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return nil
}

// advance waits for the release timer to be armed, then moves time.
func advance(fc clockwork.FakeClock, d time.Duration) {
	fc.BlockUntil(1)
	fc.Advance(d)
}

// waitIdle polls until q has no pending events.
func waitIdle(t *testing.T, q *seq.Queue) seq.QueueStatus {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st, err := q.Status()
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if st.Events == 0 {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("Queue still has %d pending events", st.Events)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
