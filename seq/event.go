package seq

import (
	"fmt"
	"strings"

	"go-midiseq/proto"
)

// Event is one sequencer message. Build it with the Set methods, then hand
// it to Client.Send. Builders never fail; whatever is missing or stale is
// reported by Send. Not safe for concurrent use
type Event struct {
	typ     EventType
	source  Addr
	srcPort *Port
	dest    Addr

	direct    bool
	scheduled bool
	relative  bool
	queue     int
	tick      Tick

	payload Payload
}

var unknownAddr = Addr{Client: proto.AddressUnknown, Port: proto.AddressUnknown}

// NewEvent returns an empty event with no type, source or destination
func NewEvent() *Event {
	ev := &Event{}
	ev.Reset()
	return ev
}

// Reset clears every field
func (e *Event) Reset() {
	*e = Event{
		typ:    EventNone,
		source: unknownAddr,
		dest:   unknownAddr,
		queue:  -1,
	}
}

// SetSource sets the sending port; nil clears it
func (e *Event) SetSource(p *Port) {
	if p == nil {
		e.srcPort = nil
		e.source = unknownAddr
		return
	}
	e.srcPort = p
	e.source = p.Addr()
}

// SetSubscribers sends the event to every port subscribed to its source
func (e *Event) SetSubscribers() {
	e.dest = Subscribers
}

// SetDestination addresses a single port
func (e *Event) SetDestination(addr Addr) {
	e.dest = addr
}

// SetDirect makes the event bypass queueing even if a schedule is set
func (e *Event) SetDirect() {
	e.direct = true
}

// ClearDirect undoes SetDirect, e.g. before rescheduling a received event
func (e *Event) ClearDirect() {
	e.direct = false
}

// ScheduleTick releases the event at tick on q. A relative tick is added to
// the queue position when the event reaches the subsystem. A nil q leaves
// the event unscheduled
func (e *Event) ScheduleTick(q *Queue, relative bool, tick Tick) {
	if q == nil {
		e.scheduled = false
		e.relative = false
		e.queue = -1
		e.tick = 0
		return
	}
	e.scheduled = true
	e.relative = relative
	e.queue = q.id
	e.tick = tick
}

// SetNote sets a note with a duration in ticks, played as a note-on and a
// note-off duration ticks later
func (e *Event) SetNote(channel, note, velocity uint8, duration uint32) {
	e.typ = EventNote
	e.payload = NoteData{Channel: channel, Note: note, Velocity: velocity, Duration: duration}
}

// SetNoteOn sets a key press
func (e *Event) SetNoteOn(channel, note, velocity uint8) {
	e.typ = EventNoteOn
	e.payload = NoteData{Channel: channel, Note: note, Velocity: velocity}
}

// SetNoteOff sets a key release with its release velocity
func (e *Event) SetNoteOff(channel, note, velocity uint8) {
	e.typ = EventNoteOff
	e.payload = NoteData{Channel: channel, Note: note, Velocity: velocity}
}

// SetController sets a control change
func (e *Event) SetController(channel uint8, controller uint32, value int32) {
	e.typ = EventController
	e.payload = ControlData{Channel: channel, Param: controller, Value: value}
}

// SetProgramChange selects program on channel
func (e *Event) SetProgramChange(channel uint8, program int32) {
	e.typ = EventPgmChange
	e.payload = ControlData{Channel: channel, Value: program}
}

// SetPitchBend takes a signed value in -8192..8191
func (e *Event) SetPitchBend(channel uint8, value int32) {
	e.typ = EventPitchBend
	e.payload = ControlData{Channel: channel, Value: value}
}

// SetClock makes the event a MIDI clock pulse
func (e *Event) SetClock() {
	e.SetRealtime(EventClock)
}

// SetRealtime makes the event a payload-less realtime message (clock,
// start, stop, continue) meant for subscribers rather than a queue
func (e *Event) SetRealtime(typ EventType) {
	e.typ = typ
	e.payload = nil
}

// SetSysEx attaches b without copying it; b must stay untouched until Send
// returns. It returns the payload length
func (e *Event) SetSysEx(b []byte) int {
	e.typ = EventSysEx
	e.payload = Variable(b)
	return len(b)
}

// SetQueueControl turns the event into a queue-control event of type typ
// for q, addressed to the system timer. Scheduling is left alone, so a
// scheduled event becomes a deferred control action. A nil q names no
// queue and Send fails with ErrNoSuchQueue
func (e *Event) SetQueueControl(typ EventType, q *Queue, value int32) {
	id := -1
	if q != nil {
		id = q.id
	}
	e.typ = typ
	e.dest = SystemTimer
	e.payload = QueueControlData{Queue: id, Value: value}
}

// SetQueueTempo makes the event change q's tempo when processed
func (e *Event) SetQueueTempo(q *Queue, tempo int) {
	e.SetQueueControl(EventTempo, q, int32(tempo))
}

// SetQueuePositionTick makes the event move q to tick when processed
func (e *Event) SetQueuePositionTick(q *Queue, tick Tick) {
	e.SetQueueControl(EventSetPosTick, q, int32(tick))
}

// Type returns the event type
func (e *Event) Type() EventType { return e.typ }

// Source returns the sending address. On received events the client part
// is filled in by the subsystem
func (e *Event) Source() Addr { return e.source }

// Dest returns the destination address
func (e *Event) Dest() Addr { return e.dest }

// Time returns the scheduled tick, or on received events the tick at which
// the event was released
func (e *Event) Time() Tick { return e.tick }

// Queue returns the queue id the event is scheduled on, or -1
func (e *Event) Queue() int { return e.queue }

// IsDirect reports whether the event bypasses queues
func (e *Event) IsDirect() bool { return e.direct }

// Payload returns the type-specific data
func (e *Event) Payload() Payload { return e.payload }

// Note returns the note payload
func (e *Event) Note() (NoteData, bool) {
	n, ok := e.payload.(NoteData)
	return n, ok
}

// Control returns the controller payload
func (e *Event) Control() (ControlData, bool) {
	c, ok := e.payload.(ControlData)
	return c, ok
}

// QueueControl returns the queue-control payload
func (e *Event) QueueControl() (QueueControlData, bool) {
	q, ok := e.payload.(QueueControlData)
	return q, ok
}

// VariablePayload returns the sysex bytes. For received events the slice
// belongs to the event and stays valid as long as the event does
func (e *Event) VariablePayload() []byte {
	v, _ := e.payload.(Variable)
	return v
}

// String formats the event for logs
func (e *Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s->%s", e.typ, e.source, e.dest)
	switch {
	case e.direct:
		b.WriteString(" direct")
	case e.queue >= 0:
		fmt.Fprintf(&b, " q%d@%d", e.queue, e.tick)
		if e.relative {
			b.WriteString("+")
		}
	}
	switch p := e.payload.(type) {
	case NoteData:
		fmt.Fprintf(&b, " ch=%d note=%d vel=%d", p.Channel, p.Note, p.Velocity)
		if e.typ == EventNote {
			fmt.Fprintf(&b, " dur=%d", p.Duration)
		}
	case ControlData:
		fmt.Fprintf(&b, " ch=%d param=%d value=%d", p.Channel, p.Param, p.Value)
	case QueueControlData:
		fmt.Fprintf(&b, " queue=%d value=%d", p.Queue, p.Value)
	case Variable:
		fmt.Fprintf(&b, " len=%d", len(p))
	}
	return b.String()
}

// header encodes the event for the wire. direct has already been resolved
// by Send.
func (e *Event) header(direct bool) (proto.Header, []byte) {
	h := proto.Header{
		Type:   e.typ,
		Source: e.source,
		Dest:   e.dest,
	}
	if direct {
		h.Queue = proto.QueueDirect
	} else {
		h.Queue = uint8(e.queue)
		h.Tick = e.tick
		if e.relative {
			h.Flags |= proto.FlagTimeModeRel
		}
	}
	var variable []byte
	if e.payload != nil {
		variable = e.payload.put(&h)
	}
	return h, variable
}

// eventFromWire builds a received event. The payload of a sysex event
// aliases b.
func eventFromWire(b []byte) (*Event, error) {
	h, variable, _, err := proto.DecodeEvent(b)
	if err != nil {
		return nil, err
	}
	ev := &Event{
		typ:     h.Type,
		source:  h.Source,
		dest:    h.Dest,
		queue:   int(h.Queue),
		tick:    h.Tick,
		payload: payloadOf(&h, variable),
	}
	if h.Direct() {
		ev.direct = true
		ev.queue = -1
	} else {
		ev.scheduled = true
	}
	return ev, nil
}
