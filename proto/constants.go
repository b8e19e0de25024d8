package proto

// EventType is the discriminant carried in the first header byte.
type EventType uint8

// Event types (numbering matches the kernel sequencer ABI)
const (
	EventSystem     EventType = 0
	EventResult     EventType = 1
	EventNote       EventType = 5
	EventNoteOn     EventType = 6
	EventNoteOff    EventType = 7
	EventKeyPress   EventType = 8
	EventController EventType = 10
	EventPgmChange  EventType = 11
	EventChanPress  EventType = 12
	EventPitchBend  EventType = 13
	EventSongPos    EventType = 20
	EventSongSel    EventType = 21

	// Queue control
	EventStart      EventType = 30
	EventContinue   EventType = 31
	EventStop       EventType = 32
	EventSetPosTick EventType = 33
	EventTempo      EventType = 35
	EventClock      EventType = 36
	EventTick       EventType = 37

	EventTuneRequest EventType = 40
	EventReset       EventType = 41
	EventSensing     EventType = 42
	EventEcho        EventType = 50

	EventPortSubscribed   EventType = 66
	EventPortUnsubscribed EventType = 67

	EventSysEx  EventType = 130
	EventBounce EventType = 131

	EventNone EventType = 255
)

var eventNames = map[EventType]string{
	EventSystem:           "system",
	EventResult:           "result",
	EventNote:             "note",
	EventNoteOn:           "note-on",
	EventNoteOff:          "note-off",
	EventKeyPress:         "key-pressure",
	EventController:       "controller",
	EventPgmChange:        "program-change",
	EventChanPress:        "channel-pressure",
	EventPitchBend:        "pitch-bend",
	EventSongPos:          "song-position",
	EventSongSel:          "song-select",
	EventStart:            "start",
	EventContinue:         "continue",
	EventStop:             "stop",
	EventSetPosTick:       "set-position-tick",
	EventTempo:            "tempo",
	EventClock:            "clock",
	EventTick:             "tick",
	EventTuneRequest:      "tune-request",
	EventReset:            "reset",
	EventSensing:          "active-sensing",
	EventEcho:             "echo",
	EventPortSubscribed:   "port-subscribed",
	EventPortUnsubscribed: "port-unsubscribed",
	EventSysEx:            "sysex",
	EventBounce:           "bounce",
	EventNone:             "none",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsNote reports whether the payload is the note layout.
func (t EventType) IsNote() bool {
	return t >= EventNote && t <= EventKeyPress
}

// IsControl reports whether the payload is the controller layout.
func (t EventType) IsControl() bool {
	return (t >= EventController && t <= EventPitchBend) || t == EventSongPos || t == EventSongSel
}

// IsQueueControl reports whether the payload is the queue-control layout.
func (t EventType) IsQueueControl() bool {
	return t >= EventStart && t <= EventTick
}

// IsVariable reports whether the event carries a variable-length payload.
func (t EventType) IsVariable() bool {
	return t == EventSysEx || t == EventBounce
}

// Capability bits describe what peers may do with a port.
type Capability uint32

const (
	CapRead      Capability = 1 << 0
	CapWrite     Capability = 1 << 1
	CapSyncRead  Capability = 1 << 2
	CapSyncWrite Capability = 1 << 3
	CapDuplex    Capability = 1 << 4
	CapSubsRead  Capability = 1 << 5
	CapSubsWrite Capability = 1 << 6
	CapNoExport  Capability = 1 << 7

	// CapDirectional is the set of which at least one bit must be present.
	CapDirectional = CapRead | CapWrite | CapSubsRead | CapSubsWrite
)

// PortType tags what a port represents.
type PortType uint32

const (
	PortTypeSpecific    PortType = 1 << 0
	PortTypeMIDIGeneric PortType = 1 << 1
	PortTypeMIDIGM      PortType = 1 << 2
	PortTypeMIDIGS      PortType = 1 << 3
	PortTypeMIDIXG      PortType = 1 << 4
	PortTypeHardware    PortType = 1 << 16
	PortTypeSoftware    PortType = 1 << 17
	PortTypeSynthesizer PortType = 1 << 18
	PortTypePort        PortType = 1 << 19
	PortTypeApplication PortType = 1 << 20
)

// Special client/port/queue numbers.
const (
	ClientSystem = 0
	ClientFirst  = 128 // first id handed to user clients
	ClientMax    = 192

	PortSystemTimer    = 0
	PortSystemAnnounce = 1

	AddressUnknown     = 253
	AddressSubscribers = 254
	AddressBroadcast   = 255

	QueueDirect = 253
	QueueMax    = 32
)

// Header flag bits.
const (
	FlagTimeStampReal  uint8 = 1 << 0
	FlagTimeModeRel    uint8 = 1 << 1
	FlagLengthVariable uint8 = 1 << 2
	FlagLengthVarUser  uint8 = 1 << 3
	FlagLengthMask     uint8 = FlagLengthVariable | FlagLengthVarUser
	FlagPriorityHigh   uint8 = 1 << 4
)

// Default queue timing: 96 PPQ at 120 BPM.
const (
	DefaultPPQ   = 96
	DefaultTempo = 500000
)

// Addr is a client:port pair.
type Addr struct {
	Client uint8
	Port   uint8
}

// SystemTimer is the destination of queue-control events.
var SystemTimer = Addr{Client: ClientSystem, Port: PortSystemTimer}

// Subscribers is the fan-out destination.
var Subscribers = Addr{Client: AddressSubscribers, Port: AddressUnknown}

// IsSubscribers reports whether a is the fan-out marker.
func (a Addr) IsSubscribers() bool {
	return a.Client == AddressSubscribers
}
