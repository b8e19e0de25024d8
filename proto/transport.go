package proto

// Handle identifies one open connection to a transport.
type Handle int

// OpenMode selects which directions a connection carries.
type OpenMode int

const (
	OpenOutput OpenMode = 1 << iota
	OpenInput
	OpenDuplex = OpenOutput | OpenInput
)

// Direction of a subscription edge relative to the local port.
type Direction int

const (
	// DirFrom: remote port -> local port
	DirFrom Direction = iota
	// DirTo: local port -> remote port
	DirTo
)

// QueueStatus is a snapshot of a queue's clock.
type QueueStatus struct {
	Queue   int
	Owner   int
	Tick    Tick
	Running bool
	PPQ     int
	Tempo   int // microseconds per quarter note
	Events  int // events waiting for release
}

// ClientInfo describes a connected client as seen by enumeration.
type ClientInfo struct {
	Client int
	Name   string
	Ports  []PortInfo
}

// PortInfo describes one port of a client.
type PortInfo struct {
	Addr Addr
	Name string
	Caps Capability
	Type PortType
}

// Transport is the driver subsystem the client core talks to. All
// serialization of subsystem state lives behind this interface.
type Transport interface {
	Open(mode OpenMode) (Handle, error)
	Close(h Handle) error
	ClientID(h Handle) (int, error)
	SetClientName(h Handle, name string) error

	CreatePort(h Handle, name string, caps Capability, typ PortType) (int, error)
	DeletePort(h Handle, port int) error
	Connect(h Handle, local, remoteClient, remotePort int, dir Direction) error
	Disconnect(h Handle, local, remoteClient, remotePort int, dir Direction) error

	// Write accepts one or more back-to-back encoded events. With direct
	// set every event is dispatched immediately regardless of its queue
	// field. Without block a full subsystem pool yields ErrWouldBlock.
	Write(h Handle, events []byte, direct, block bool) (int, error)

	// Read returns exactly one encoded event, or ErrWouldBlock when none is
	// pending and block is false.
	Read(h Handle, block bool) ([]byte, error)

	QueueAlloc(h Handle) (int, error)
	QueueFree(h Handle, queue int) error
	QueueSetTempo(h Handle, queue, ppq, tempo int) error
	QueueStatus(h Handle, queue int) (QueueStatus, error)
}
