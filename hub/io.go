package hub

import (
	"fmt"
	"time"

	"go-midiseq/debug"
	"go-midiseq/proto"
)

// Write accepts back-to-back encoded events from a client. It returns the
// number of bytes consumed; on error the events before the failing one have
// been accepted.
func (h *Hub) Write(handle proto.Handle, events []byte, direct, block bool) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return 0, err
	}
	if c.mode&proto.OpenOutput == 0 {
		return 0, fmt.Errorf("client %d opened without output: %w", c.id, proto.ErrPermission)
	}

	consumed := 0
	for consumed < len(events) {
		hdr, payload, n, err := proto.DecodeEvent(events[consumed:])
		if err != nil {
			return consumed, err
		}
		if err := h.accept(c, hdr, payload, direct, block); err != nil {
			return consumed, err
		}
		consumed += n
	}
	return consumed, nil
}

// accept validates one event and either dispatches it or schedules it.
func (h *Hub) accept(c *client, hdr proto.Header, payload []byte, direct, block bool) error {
	hdr.Source.Client = uint8(c.id)
	if hdr.Source.Port != proto.AddressUnknown {
		if _, ok := c.ports[int(hdr.Source.Port)]; !ok {
			return fmt.Errorf("source port %s: %w", hdr.Source, proto.ErrNoSuchEndpoint)
		}
	}
	if err := h.checkDest(&hdr); err != nil {
		return err
	}

	if direct || hdr.Direct() {
		hdr.Queue = proto.QueueDirect
		return h.dispatch(&hdr, payload, h.opts.clock.Now())
	}

	q, err := h.queue(int(hdr.Queue))
	if err != nil {
		return err
	}

	for c.pooled >= h.opts.poolSize {
		if !block {
			return proto.ErrWouldBlock
		}
		c.poolCond.Wait()
		if c.closed {
			return proto.ErrConnectionClosed
		}
		// the queue may have been freed while we waited
		if q, err = h.queue(int(hdr.Queue)); err != nil {
			return err
		}
	}

	h.enqueue(q, c.id, hdr, payload)
	return nil
}

func (h *Hub) checkDest(hdr *proto.Header) error {
	if hdr.Dest.IsSubscribers() {
		if hdr.Source.Port == proto.AddressUnknown {
			return fmt.Errorf("subscriber delivery without source port: %w", proto.ErrInvalidEvent)
		}
		return nil
	}
	_, _, err := h.findPort(hdr.Dest)
	return err
}

// dispatch processes an event at time at: queue control addressed to the
// system timer changes queue state, everything else is routed.
func (h *Hub) dispatch(hdr *proto.Header, payload []byte, at time.Time) error {
	switch {
	case hdr.Type.IsQueueControl() && hdr.Dest == proto.SystemTimer:
		return h.control(hdr, at)
	case hdr.Type == proto.EventNote:
		return h.playNote(hdr)
	}
	return h.route(hdr, payload)
}

// playNote splits a note with a duration into a note-on routed now and a
// note-off scheduled duration ticks later on the same queue.
func (h *Hub) playNote(hdr *proto.Header) error {
	if hdr.Direct() {
		return fmt.Errorf("note with duration needs a queue: %w", proto.ErrInvalidEvent)
	}
	q, err := h.queue(int(hdr.Queue))
	if err != nil {
		return err
	}
	ch, note, vel, offVel, dur := hdr.Note()

	on := *hdr
	on.Type = proto.EventNoteOn
	on.PutNote(ch, note, vel, 0, 0)
	if err := h.route(&on, nil); err != nil {
		return err
	}

	off := *hdr
	off.Type = proto.EventNoteOff
	off.Flags &^= proto.FlagTimeModeRel
	off.Tick = addTicks(hdr.Tick, proto.Tick(dur))
	off.PutNote(ch, note, offVel, 0, 0)
	h.enqueue(q, int(hdr.Source.Client), off, nil)
	return nil
}

// route hands an event to its destination, or to every subscriber of its
// source port.
func (h *Hub) route(hdr *proto.Header, payload []byte) error {
	if !hdr.Dest.IsSubscribers() {
		return h.deliver(hdr.Dest, *hdr, payload)
	}

	sc, sp, err := h.findPort(hdr.Source)
	if err != nil {
		return err
	}
	for dst := range sp.subs {
		if err := h.deliver(dst, *hdr, payload); err != nil {
			debug.Warn("route", "client %d: subscriber %s unreachable: %v", sc.id, dst, err)
		}
	}
	return nil
}

// deliver appends an event to the destination client's input FIFO.
func (h *Hub) deliver(dst proto.Addr, hdr proto.Header, payload []byte) error {
	c, _, err := h.findPort(dst)
	if err != nil {
		return err
	}
	if c.mode&proto.OpenInput == 0 {
		// output-only clients (the system client among them) swallow input
		return nil
	}
	if len(c.input) >= h.opts.inputDepth {
		c.overruns++
		debug.Warn("route", "client %d input full, dropped %s from %s", c.id, hdr.Type, hdr.Source)
		return nil
	}

	hdr.Dest = dst
	c.input = append(c.input, proto.AppendEvent(nil, &hdr, payload))
	c.inputCond.Signal()
	return nil
}

// Read pops one encoded event from the client's input FIFO.
func (h *Hub) Read(handle proto.Handle, block bool) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return nil, err
	}
	if c.mode&proto.OpenInput == 0 {
		return nil, fmt.Errorf("client %d opened without input: %w", c.id, proto.ErrPermission)
	}

	for len(c.input) == 0 {
		if !block {
			return nil, proto.ErrWouldBlock
		}
		c.inputCond.Wait()
		if c.closed {
			return nil, proto.ErrConnectionClosed
		}
	}

	ev := c.input[0]
	c.input[0] = nil
	c.input = c.input[1:]
	return ev, nil
}
