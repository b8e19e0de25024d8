// Package seq is the client side of the sequencer: clients own ports and
// allocate tick queues, build events, and dispatch them either directly or
// through a queue that releases them at their scheduled tick.
//
// A Client talks to the subsystem only through proto.Transport; package hub
// provides an in-process implementation.
package seq

import "go-midiseq/proto"

// Re-exported wire types, so callers rarely need package proto.
type (
	Tick        = proto.Tick
	Addr        = proto.Addr
	EventType   = proto.EventType
	Capability  = proto.Capability
	PortType    = proto.PortType
	QueueStatus = proto.QueueStatus
)

// Port capabilities
const (
	CapRead      = proto.CapRead
	CapWrite     = proto.CapWrite
	CapSyncRead  = proto.CapSyncRead
	CapSyncWrite = proto.CapSyncWrite
	CapDuplex    = proto.CapDuplex
	CapSubsRead  = proto.CapSubsRead
	CapSubsWrite = proto.CapSubsWrite
	CapNoExport  = proto.CapNoExport
)

// Port types
const (
	PortTypeSpecific    = proto.PortTypeSpecific
	PortTypeMIDIGeneric = proto.PortTypeMIDIGeneric
	PortTypeMIDIGM      = proto.PortTypeMIDIGM
	PortTypeHardware    = proto.PortTypeHardware
	PortTypeSoftware    = proto.PortTypeSoftware
	PortTypeSynthesizer = proto.PortTypeSynthesizer
	PortTypeApplication = proto.PortTypeApplication
	PortTypePort        = proto.PortTypePort
)

// Event types
const (
	EventNote       = proto.EventNote
	EventNoteOn     = proto.EventNoteOn
	EventNoteOff    = proto.EventNoteOff
	EventController = proto.EventController
	EventPgmChange  = proto.EventPgmChange
	EventPitchBend  = proto.EventPitchBend
	EventStart      = proto.EventStart
	EventContinue   = proto.EventContinue
	EventStop       = proto.EventStop
	EventSetPosTick = proto.EventSetPosTick
	EventTempo      = proto.EventTempo
	EventClock      = proto.EventClock
	EventSysEx      = proto.EventSysEx
	EventNone       = proto.EventNone
)

// Default queue timing
const (
	DefaultPPQ   = proto.DefaultPPQ
	DefaultTempo = proto.DefaultTempo
)

// Special addresses
var (
	SystemTimer = proto.SystemTimer
	Subscribers = proto.Subscribers
)

// Errors. Every error returned by this package wraps one of these; test with
// errors.Is.
var (
	ErrConnection           = proto.ErrConnection
	ErrConnectionClosed     = proto.ErrConnectionClosed
	ErrInvalidCapability    = proto.ErrInvalidCapability
	ErrInvalidParameter     = proto.ErrInvalidParameter
	ErrNoSuchEndpoint       = proto.ErrNoSuchEndpoint
	ErrNoSuchQueue          = proto.ErrNoSuchQueue
	ErrWouldBlock           = proto.ErrWouldBlock
	ErrInvalidEvent         = proto.ErrInvalidEvent
	ErrAmbiguousDestination = proto.ErrAmbiguousDestination
	ErrIO                   = proto.ErrIO
	ErrPermission           = proto.ErrPermission
)

// BPM converts beats per minute to microseconds per quarter note.
func BPM(bpm float64) int {
	if bpm <= 0 {
		return 0
	}
	return int(60000000/bpm + 0.5)
}
