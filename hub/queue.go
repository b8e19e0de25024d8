package hub

import (
	"container/heap"
	"fmt"
	"math/bits"
	"time"

	"go-midiseq/debug"
	"go-midiseq/proto"
)

// queue is a tempo clock. While running, tick = baseTick + ticks elapsed
// since baseTime at the current tempo; while stopped the tick is baseTick.
// Tempo or resolution changes take effect at the next tick boundary: the
// tick in progress finishes at the old tempo, and until baseTime the queue
// reports baseTick-1.
type queue struct {
	id      int
	owner   int
	ppq     int
	tempo   int // microseconds per quarter note
	running bool

	baseTick proto.Tick
	baseTime time.Time
	prevTime time.Time // when the ticks before baseTick began

	pending eventHeap
}

func newQueue(id, owner int, now time.Time) *queue {
	return &queue{
		id:       id,
		owner:    owner,
		ppq:      proto.DefaultPPQ,
		tempo:    proto.DefaultTempo,
		baseTime: now,
		prevTime: now,
	}
}

// addTicks adds without wrapping past the last tick.
func addTicks(a, b proto.Tick) proto.Tick {
	if b > proto.Tick(^uint32(0))-a {
		return proto.Tick(^uint32(0))
	}
	return a + b
}

// nsPerQuarter returns the length of a quarter note in nanoseconds.
func (q *queue) nsPerQuarter() uint64 {
	return uint64(q.tempo) * 1000
}

// ticksIn converts a duration to whole ticks at the current tempo.
func (q *queue) ticksIn(d time.Duration) proto.Tick {
	if d <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(d), uint64(q.ppq))
	div := q.nsPerQuarter()
	if hi >= div {
		return proto.Tick(^uint32(0))
	}
	t, _ := bits.Div64(hi, lo, div)
	if t > uint64(^uint32(0)) {
		return proto.Tick(^uint32(0))
	}
	return proto.Tick(t)
}

// durationOf converts ticks to the time at which the last of them begins,
// rounded up so an event is never released early.
func (q *queue) durationOf(ticks proto.Tick) time.Duration {
	hi, lo := bits.Mul64(uint64(ticks), q.nsPerQuarter())
	ppq := uint64(q.ppq)
	if hi >= ppq {
		return time.Duration(1<<63 - 1)
	}
	d, rem := bits.Div64(hi, lo, ppq)
	if rem != 0 {
		d++
	}
	return time.Duration(d)
}

func (q *queue) tickAt(now time.Time) proto.Tick {
	if !q.running {
		return q.baseTick
	}
	if now.Before(q.baseTime) {
		// a change is waiting for the end of the current tick
		if q.baseTick > 0 {
			return q.baseTick - 1
		}
		return 0
	}
	return addTicks(q.baseTick, q.ticksIn(now.Sub(q.baseTime)))
}

// timeOf returns when tick t is (or was) reached; only meaningful while
// running.
func (q *queue) timeOf(t proto.Tick) time.Time {
	if t < q.baseTick {
		return q.prevTime
	}
	if t == q.baseTick {
		return q.baseTime
	}
	return q.baseTime.Add(q.durationOf(t - q.baseTick))
}

// rebase moves the reference point to the next tick boundary, timed at the
// current tempo. On a boundary it moves to now.
func (q *queue) rebase(now time.Time) {
	if !q.running {
		return
	}
	t := q.tickAt(now)
	begin := q.timeOf(t)
	if begin.Equal(now) {
		q.reset(t, now)
		return
	}
	next := addTicks(t, 1)
	q.baseTime = q.timeOf(next)
	q.baseTick = next
	q.prevTime = begin
}

func (q *queue) reset(t proto.Tick, now time.Time) {
	q.baseTick = t
	q.baseTime = now
	q.prevTime = now
}

func (q *queue) start(now time.Time) {
	q.reset(0, now)
	q.running = true
}

func (q *queue) stop(now time.Time) {
	if !q.running {
		return
	}
	q.reset(q.tickAt(now), now)
	q.running = false
}

func (q *queue) cont(now time.Time) {
	if q.running {
		return
	}
	q.reset(q.baseTick, now)
	q.running = true
}

func (q *queue) setPosition(t proto.Tick, now time.Time) {
	q.reset(t, now)
}

func (q *queue) setTempo(ppq, tempo int, now time.Time) {
	q.rebase(now)
	q.ppq = ppq
	q.tempo = tempo
}

// QueueAlloc allocates the lowest free queue id for the caller.
func (h *Hub) QueueAlloc(handle proto.Handle) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return 0, err
	}
	for id, q := range h.queues {
		if q == nil {
			h.queues[id] = newQueue(id, c.id, h.opts.clock.Now())
			debug.Log("queue", "queue %d allocated by client %d", id, c.id)
			return id, nil
		}
	}
	return 0, fmt.Errorf("all %d queues in use: %w", proto.QueueMax, proto.ErrNoSuchQueue)
}

// QueueFree releases a queue. Only the allocating client may free it.
func (h *Hub) QueueFree(handle proto.Handle, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return err
	}
	q, err := h.queue(id)
	if err != nil {
		return err
	}
	if q.owner != c.id {
		return fmt.Errorf("queue %d belongs to client %d: %w", id, q.owner, proto.ErrPermission)
	}
	h.freeQueue(id)
	return nil
}

func (h *Hub) freeQueue(id int) {
	q := h.queues[id]
	for _, ev := range q.pending {
		h.unpool(ev.owner)
	}
	h.queues[id] = nil
	h.interrupt()
	debug.Log("queue", "queue %d freed (dropped=%d)", id, len(q.pending))
}

// dropOwned removes a closing client's events from q.
func (h *Hub) dropOwned(q *queue, owner int) {
	kept := q.pending[:0]
	for _, ev := range q.pending {
		if ev.owner != owner {
			kept = append(kept, ev)
		}
	}
	q.pending = kept
	heap.Init(&q.pending)
}

func (h *Hub) queue(id int) (*queue, error) {
	if id < 0 || id >= proto.QueueMax || h.queues[id] == nil {
		return nil, fmt.Errorf("queue %d: %w", id, proto.ErrNoSuchQueue)
	}
	return h.queues[id], nil
}

// QueueSetTempo sets resolution and tempo together, immediately.
func (h *Hub) QueueSetTempo(handle proto.Handle, id, ppq, tempo int) error {
	if ppq <= 0 || tempo <= 0 {
		return fmt.Errorf("ppq=%d tempo=%d: %w", ppq, tempo, proto.ErrInvalidParameter)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(handle); err != nil {
		return err
	}
	q, err := h.queue(id)
	if err != nil {
		return err
	}
	q.setTempo(ppq, tempo, h.opts.clock.Now())
	h.interrupt()
	debug.Log("queue", "queue %d ppq=%d tempo=%d", id, ppq, tempo)
	return nil
}

// QueueStatus snapshots a queue's clock.
func (h *Hub) QueueStatus(handle proto.Handle, id int) (proto.QueueStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(handle); err != nil {
		return proto.QueueStatus{}, err
	}
	q, err := h.queue(id)
	if err != nil {
		return proto.QueueStatus{}, err
	}
	return proto.QueueStatus{
		Queue:   q.id,
		Owner:   q.owner,
		Tick:    q.tickAt(h.opts.clock.Now()),
		Running: q.running,
		PPQ:     q.ppq,
		Tempo:   q.tempo,
		Events:  len(q.pending),
	}, nil
}

// control applies a queue-control event at time at.
func (h *Hub) control(hdr *proto.Header, at time.Time) error {
	target, value := hdr.QueueControl()
	q, err := h.queue(int(target))
	if err != nil {
		return err
	}

	switch hdr.Type {
	case proto.EventStart:
		q.start(at)
	case proto.EventStop:
		q.stop(at)
	case proto.EventContinue:
		q.cont(at)
	case proto.EventSetPosTick:
		q.setPosition(proto.Tick(uint32(value)), at)
	case proto.EventTempo:
		if value <= 0 {
			return fmt.Errorf("tempo %d: %w", value, proto.ErrInvalidParameter)
		}
		q.setTempo(q.ppq, int(value), at)
	default:
		// clock and tick events carry the queue layout but change nothing
		return nil
	}

	h.interrupt()
	debug.Log("queue", "queue %d %s value=%d tick=%d running=%v", q.id, hdr.Type, value, q.baseTick, q.running)
	return nil
}
