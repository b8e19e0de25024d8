package proto

import (
	"encoding/binary"
	"fmt"
)

// Tick is a queue time in pulses.
type Tick uint32

// HeaderSize is the fixed size of an encoded event header.
const HeaderSize = 28

// data union offsets inside the header
const (
	dataOffset = 16
	dataSize   = 12
)

// Header is the fixed part of an event as it crosses the transport.
//
//	0  type | 1 flags | 2 tag | 3 queue
//	4  tick u32 | 8 reserved u32
//	12 source client, port | 14 dest client, port
//	16 data[12]
//
// Variable-length events are followed by Len() payload bytes.
type Header struct {
	Type   EventType
	Flags  uint8
	Tag    uint8
	Queue  uint8
	Tick   Tick
	Source Addr
	Dest   Addr
	Data   [dataSize]byte
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Client, a.Port)
}

// Variable reports whether a payload follows the header.
func (h *Header) Variable() bool {
	return h.Flags&FlagLengthMask == FlagLengthVariable
}

// Relative reports whether Tick is relative to the queue position at dispatch.
func (h *Header) Relative() bool {
	return h.Flags&FlagTimeModeRel != 0
}

// Direct reports whether the event bypasses queueing.
func (h *Header) Direct() bool {
	return h.Queue == QueueDirect
}

// Note layout: channel, note, velocity, off-velocity, duration.
func (h *Header) PutNote(channel, note, velocity, offVelocity uint8, duration uint32) {
	h.Data = [dataSize]byte{}
	h.Data[0] = channel
	h.Data[1] = note
	h.Data[2] = velocity
	h.Data[3] = offVelocity
	binary.LittleEndian.PutUint32(h.Data[4:8], duration)
}

func (h *Header) Note() (channel, note, velocity, offVelocity uint8, duration uint32) {
	return h.Data[0], h.Data[1], h.Data[2], h.Data[3], binary.LittleEndian.Uint32(h.Data[4:8])
}

// Control layout: channel, 3 pad bytes, param u32, value i32.
func (h *Header) PutControl(channel uint8, param uint32, value int32) {
	h.Data = [dataSize]byte{}
	h.Data[0] = channel
	binary.LittleEndian.PutUint32(h.Data[4:8], param)
	binary.LittleEndian.PutUint32(h.Data[8:12], uint32(value))
}

func (h *Header) Control() (channel uint8, param uint32, value int32) {
	return h.Data[0], binary.LittleEndian.Uint32(h.Data[4:8]), int32(binary.LittleEndian.Uint32(h.Data[8:12]))
}

// Queue-control layout: queue, 3 pad bytes, then an 8-byte param union whose
// first four bytes hold either a signed value (tempo) or a tick position.
func (h *Header) PutQueueControl(queue uint8, value int32) {
	h.Data = [dataSize]byte{}
	h.Data[0] = queue
	binary.LittleEndian.PutUint32(h.Data[4:8], uint32(value))
}

func (h *Header) QueueControl() (queue uint8, value int32) {
	return h.Data[0], int32(binary.LittleEndian.Uint32(h.Data[4:8]))
}

// Ext layout: length u32 followed by a pointer slot that is always zero on
// the wire; the bytes themselves follow the header.
func (h *Header) PutLen(n uint32) {
	h.Data = [dataSize]byte{}
	binary.LittleEndian.PutUint32(h.Data[0:4], n)
}

func (h *Header) Len() uint32 {
	return binary.LittleEndian.Uint32(h.Data[0:4])
}

// Size returns the encoded size of the event including its payload.
func (h *Header) Size() int {
	if h.Variable() {
		return HeaderSize + int(h.Len())
	}
	return HeaderSize
}

// AppendEvent encodes h and, for variable events, payload onto dst.
// The ext length is taken from len(payload).
func AppendEvent(dst []byte, h *Header, payload []byte) []byte {
	hdr := *h
	if hdr.Variable() {
		hdr.PutLen(uint32(len(payload)))
	}
	var b [HeaderSize]byte
	b[0] = byte(hdr.Type)
	b[1] = hdr.Flags
	b[2] = hdr.Tag
	b[3] = hdr.Queue
	binary.LittleEndian.PutUint32(b[4:8], uint32(hdr.Tick))
	b[12] = hdr.Source.Client
	b[13] = hdr.Source.Port
	b[14] = hdr.Dest.Client
	b[15] = hdr.Dest.Port
	copy(b[dataOffset:], hdr.Data[:])
	dst = append(dst, b[:]...)
	if hdr.Variable() {
		dst = append(dst, payload...)
	}
	return dst
}

// DecodeEvent reads one event from b. The returned payload aliases b.
func DecodeEvent(b []byte) (h Header, payload []byte, n int, err error) {
	if len(b) < HeaderSize {
		return h, nil, 0, fmt.Errorf("short header (%d bytes): %w", len(b), ErrInvalidEvent)
	}
	h.Type = EventType(b[0])
	h.Flags = b[1]
	h.Tag = b[2]
	h.Queue = b[3]
	h.Tick = Tick(binary.LittleEndian.Uint32(b[4:8]))
	h.Source = Addr{Client: b[12], Port: b[13]}
	h.Dest = Addr{Client: b[14], Port: b[15]}
	copy(h.Data[:], b[dataOffset:HeaderSize])
	n = HeaderSize
	if h.Variable() {
		l := int(h.Len())
		if len(b)-HeaderSize < l {
			return h, nil, 0, fmt.Errorf("truncated payload (want %d, have %d): %w", l, len(b)-HeaderSize, ErrInvalidEvent)
		}
		payload = b[HeaderSize : HeaderSize+l]
		n += l
	}
	return h, payload, n, nil
}

// EachEvent walks a buffer of back-to-back encoded events.
func EachEvent(b []byte, fn func(h Header, payload []byte) error) error {
	for len(b) > 0 {
		h, payload, n, err := DecodeEvent(b)
		if err != nil {
			return err
		}
		if err := fn(h, payload); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
