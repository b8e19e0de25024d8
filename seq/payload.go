package seq

import "go-midiseq/proto"

// Payload is the type-specific part of an event. It is one of NoteData,
// ControlData, QueueControlData or Variable; events without data carry nil.
type Payload interface {
	put(h *proto.Header) []byte
}

// NoteData is the payload of note, note-on, note-off and key-pressure events.
// Duration is only meaningful for EventNote.
type NoteData struct {
	Channel     uint8
	Note        uint8
	Velocity    uint8
	OffVelocity uint8
	Duration    uint32
}

func (n NoteData) put(h *proto.Header) []byte {
	h.PutNote(n.Channel, n.Note, n.Velocity, n.OffVelocity, n.Duration)
	return nil
}

// ControlData is the payload of controller, program change and pitch bend.
type ControlData struct {
	Channel uint8
	Param   uint32
	Value   int32
}

func (c ControlData) put(h *proto.Header) []byte {
	h.PutControl(c.Channel, c.Param, c.Value)
	return nil
}

// QueueControlData names the queue a control event acts on and its argument
// (tempo in microseconds per quarter, or a tick position).
type QueueControlData struct {
	Queue int
	Value int32
}

func (q QueueControlData) put(h *proto.Header) []byte {
	h.PutQueueControl(uint8(q.Queue), q.Value)
	return nil
}

// Variable is a sysex payload. It aliases the caller's (or the received)
// buffer.
type Variable []byte

func (v Variable) put(h *proto.Header) []byte {
	h.Flags = h.Flags&^proto.FlagLengthMask | proto.FlagLengthVariable
	h.PutLen(uint32(len(v)))
	return v
}

// payloadOf decodes the data union for a received header.
func payloadOf(h *proto.Header, variable []byte) Payload {
	switch {
	case h.Variable():
		return Variable(variable)
	case h.Type.IsNote():
		ch, note, vel, off, dur := h.Note()
		return NoteData{Channel: ch, Note: note, Velocity: vel, OffVelocity: off, Duration: dur}
	case h.Type.IsControl():
		ch, param, value := h.Control()
		return ControlData{Channel: ch, Param: param, Value: value}
	case h.Type.IsQueueControl():
		q, value := h.QueueControl()
		return QueueControlData{Queue: int(q), Value: value}
	}
	return nil
}
