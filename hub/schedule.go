package hub

import (
	"container/heap"
	"time"

	"github.com/jonboulle/clockwork"

	"go-midiseq/debug"
	"go-midiseq/proto"
)

// pendingEvent is a scheduled event waiting in a queue.
type pendingEvent struct {
	tick    proto.Tick
	seq     uint64
	owner   int
	hdr     proto.Header
	payload []byte
}

// eventHeap orders by tick, then by enqueue order.
type eventHeap []*pendingEvent

func (e eventHeap) Len() int { return len(e) }
func (e eventHeap) Less(i, j int) bool {
	if e[i].tick != e[j].tick {
		return e[i].tick < e[j].tick
	}
	return e[i].seq < e[j].seq
}
func (e eventHeap) Swap(i, j int)       { e[i], e[j] = e[j], e[i] }
func (e *eventHeap) Push(x interface{}) { *e = append(*e, x.(*pendingEvent)) }
func (e *eventHeap) Pop() interface{} {
	old := *e
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*e = old[:n-1]
	return ev
}

// enqueue schedules hdr on q. Relative ticks are resolved against the
// queue position now; a tick past the end of the clock becomes the last
// tick.
func (h *Hub) enqueue(q *queue, owner int, hdr proto.Header, payload []byte) {
	tick := hdr.Tick
	if hdr.Relative() {
		tick = addTicks(q.tickAt(h.opts.clock.Now()), tick)
		hdr.Flags &^= proto.FlagTimeModeRel
	}
	hdr.Tick = tick

	h.seq++
	heap.Push(&q.pending, &pendingEvent{
		tick:    tick,
		seq:     h.seq,
		owner:   owner,
		hdr:     hdr,
		payload: append([]byte(nil), payload...),
	})
	if c, ok := h.clients[owner]; ok {
		c.pooled++
	}
	h.interrupt()
}

func (h *Hub) unpool(owner int) {
	c, ok := h.clients[owner]
	if !ok {
		return
	}
	if c.pooled > 0 {
		c.pooled--
	}
	c.poolCond.Broadcast()
}

// nextDue finds the earliest pending event across all running queues.
func (h *Hub) nextDue() (*queue, time.Time, bool) {
	var (
		best    *queue
		bestAt  time.Time
		haveAny bool
	)
	for _, q := range h.queues {
		if q == nil || !q.running || len(q.pending) == 0 {
			continue
		}
		at := q.timeOf(q.pending[0].tick)
		if !haveAny || at.Before(bestAt) {
			best, bestAt, haveAny = q, at, true
		}
	}
	return best, bestAt, haveAny
}

// releaseDue processes every event due at or before now, earliest first,
// and returns how long to wait for the next one.
func (h *Hub) releaseDue(now time.Time) (time.Duration, bool) {
	for {
		q, at, ok := h.nextDue()
		if !ok {
			return 0, false
		}
		if at.After(now) {
			return at.Sub(now), true
		}

		ev := heap.Pop(&q.pending).(*pendingEvent)
		h.unpool(ev.owner)
		if err := h.dispatch(&ev.hdr, ev.payload, at); err != nil {
			debug.Warn("release", "queue=%d tick=%d type=%s dropped: %v", q.id, ev.tick, ev.hdr.Type, err)
			continue
		}
		debug.Log("release", "queue=%d tick=%d type=%s src=%s dst=%s", q.id, ev.tick, ev.hdr.Type, ev.hdr.Source, ev.hdr.Dest)
	}
}

// releaseLoop waits for the earliest due event across queues and releases it
func (h *Hub) releaseLoop() {
	defer h.wg.Done()

	for {
		h.mu.Lock()
		now := h.opts.clock.Now()
		wait, ok := h.releaseDue(now)
		h.mu.Unlock()

		var (
			timer  clockwork.Timer
			timerC <-chan time.Time
		)
		if ok {
			timer = h.opts.clock.NewTimer(wait)
			timerC = timer.Chan()
			// the clock moved while we were arming, the wait is stale
			if h.opts.clock.Since(now) > time.Millisecond {
				timer.Stop()
				continue
			}
		}

		select {
		case <-h.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-h.interruptChan:
			// Queue changed, recalculate immediately
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
