package seq

import (
	"errors"
	"fmt"
	"sync"

	"go-midiseq/debug"
	"go-midiseq/proto"
)

// Client is one duplex connection to the sequencer subsystem.
//
// Send buffers queued events locally until DrainOutput (or a full buffer)
// flushes them; direct events are written through at once. The client only
// guards its own buffer and open state, all subsystem state is serialized
// by the transport.
type Client struct {
	t      proto.Transport
	handle proto.Handle
	id     int
	opts   options

	mu       sync.Mutex
	closed   bool
	nonblock bool
	out      []byte // encoded events not yet written
	seq      uint64
	ports    map[int]*Port

	drainMu sync.Mutex // serializes flushes so buffered events keep their order
}

// Open connects a new client to t.
func Open(t proto.Transport, opts ...Option) (*Client, error) {
	o := options{outputBuffer: DefaultOutputBuffer}
	for _, opt := range opts {
		opt(&o)
	}

	handle, err := t.Open(proto.OpenDuplex)
	if err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	id, err := t.ClientID(handle)
	if err != nil {
		t.Close(handle)
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c := &Client{
		t:        t,
		handle:   handle,
		id:       id,
		opts:     o,
		nonblock: o.nonblocking,
		ports:    make(map[int]*Port),
	}
	if o.name != "" {
		if err := c.SetName(o.name); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.logf("client %d opened (nonblocking=%v strict=%v buffer=%d)", id, o.nonblocking, o.strict, o.outputBuffer)
	return c, nil
}

// ID returns the subsystem-assigned client number.
func (c *Client) ID() int { return c.id }

// SetName sets the name advertised to peers.
func (c *Client) SetName(name string) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.opts.name = name
	c.mu.Unlock()
	return c.t.SetClientName(c.handle, name)
}

// Name returns the last name set.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.name
}

// SetNonblocking switches Receive and Send between blocking and
// nonblocking behavior. DrainOutput always blocks.
func (c *Client) SetNonblocking(nonblocking bool) {
	c.mu.Lock()
	c.nonblock = nonblocking
	c.mu.Unlock()
}

// Nonblocking reports the current mode.
func (c *Client) Nonblocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonblock
}

// Close releases the client's ports, subscriptions and queues. Blocked
// Receive and DrainOutput calls return ErrConnectionClosed. Closing twice
// is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.out = nil
	for _, p := range c.ports {
		p.deleted = true
	}
	c.mu.Unlock()

	c.logf("client %d closed", c.id)
	if err := c.t.Close(c.handle); err != nil && !errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// CreatePort adds a port. caps must include at least one of read, write,
// subs-read or subs-write.
func (c *Client) CreatePort(name string, caps Capability, typ PortType) (*Port, error) {
	if caps&proto.CapDirectional == 0 {
		return nil, fmt.Errorf("port %q caps %#x: %w", name, uint32(caps), ErrInvalidCapability)
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	id, err := c.t.CreatePort(c.handle, name, caps, typ)
	if err != nil {
		return nil, err
	}

	p := &Port{c: c, id: id, name: name, caps: caps, typ: typ}
	c.mu.Lock()
	c.ports[id] = p
	c.mu.Unlock()

	c.logf("port %s created caps=%#x", p.Addr(), uint32(caps))
	return p, nil
}

// Ports returns the client's live ports.
func (c *Client) Ports() []*Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	ports := make([]*Port, 0, len(c.ports))
	for id := 0; len(ports) < len(c.ports); id++ {
		if p, ok := c.ports[id]; ok {
			ports = append(ports, p)
		}
	}
	return ports
}

// ConnectFrom subscribes local to events sent by remote to its subscribers.
func (c *Client) ConnectFrom(local *Port, remoteClient, remotePort int) error {
	return c.subscribe(local, remoteClient, remotePort, proto.DirFrom, true)
}

// ConnectTo subscribes remote to events local sends to its subscribers.
func (c *Client) ConnectTo(local *Port, remoteClient, remotePort int) error {
	return c.subscribe(local, remoteClient, remotePort, proto.DirTo, true)
}

func (c *Client) DisconnectFrom(local *Port, remoteClient, remotePort int) error {
	return c.subscribe(local, remoteClient, remotePort, proto.DirFrom, false)
}

func (c *Client) DisconnectTo(local *Port, remoteClient, remotePort int) error {
	return c.subscribe(local, remoteClient, remotePort, proto.DirTo, false)
}

func (c *Client) subscribe(local *Port, remoteClient, remotePort int, dir proto.Direction, connect bool) error {
	if err := c.owns(local); err != nil {
		return err
	}
	if connect {
		return c.t.Connect(c.handle, local.id, remoteClient, remotePort, dir)
	}
	return c.t.Disconnect(c.handle, local.id, remoteClient, remotePort, dir)
}

// AllocQueue allocates a new queue owned by this client.
func (c *Client) AllocQueue() (*Queue, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	id, err := c.t.QueueAlloc(c.handle)
	if err != nil {
		return nil, err
	}
	c.logf("queue %d allocated", id)
	return &Queue{c: c, id: id, owner: true}, nil
}

// Queue returns a handle on a queue allocated by any client. The id is
// checked when the handle is used.
func (c *Client) Queue(id int) *Queue {
	return &Queue{c: c, id: id}
}

// Send dispatches ev. With direct (or ev.SetDirect) the event is written
// through immediately; otherwise it is buffered and released by its queue
// at its scheduled tick. The returned sequence number counts accepted
// events.
//
// A note with a duration is played by the subsystem as a note-on and a
// note-off duration ticks later on its queue. Sent direct, the note-on goes
// out at once and the note-off is scheduled relative to the position of the
// queue the event names; without a queue Send returns ErrInvalidEvent.
func (c *Client) Send(ev *Event, direct bool) (uint64, error) {
	direct, err := c.validate(ev, direct)
	if err != nil {
		return 0, err
	}
	if direct && ev.typ == EventNote {
		return c.sendNote(ev)
	}

	hdr, payload := ev.header(direct)
	b := proto.AppendEvent(nil, &hdr, payload)
	if direct {
		return c.writeDirect(b)
	}
	return c.buffer(b)
}

// validate resolves the delivery mode and rejects events the subsystem
// could never deliver.
func (c *Client) validate(ev *Event, direct bool) (bool, error) {
	if err := c.usable(); err != nil {
		return false, err
	}
	if ev == nil || ev.typ == EventNone {
		return false, fmt.Errorf("event has no type: %w", ErrInvalidEvent)
	}
	if ev.dest == unknownAddr {
		return false, fmt.Errorf("%s has no destination: %w", ev.typ, ErrInvalidEvent)
	}
	if ev.srcPort != nil {
		if err := c.owns(ev.srcPort); err != nil {
			return false, err
		}
	}

	direct = direct || ev.direct
	switch {
	case direct && ev.scheduled:
		if c.opts.strict {
			return false, fmt.Errorf("%s is direct and scheduled on queue %d: %w", ev.typ, ev.queue, ErrAmbiguousDestination)
		}
	case !direct && !ev.scheduled:
		return false, fmt.Errorf("%s is neither direct nor scheduled: %w", ev.typ, ErrInvalidEvent)
	case !direct && (ev.queue < 0 || ev.queue >= proto.QueueMax):
		return false, fmt.Errorf("%s queue %d: %w", ev.typ, ev.queue, ErrNoSuchQueue)
	}
	return direct, nil
}

// sendNote splits a direct note into a note-on written through now and a
// note-off scheduled on the event's queue.
func (c *Client) sendNote(ev *Event) (uint64, error) {
	n, _ := ev.Note()
	if ev.queue < 0 || ev.queue >= proto.QueueMax {
		return 0, fmt.Errorf("direct note needs a queue for its note-off: %w", ErrInvalidEvent)
	}

	on := *ev
	on.typ = EventNoteOn
	on.payload = NoteData{Channel: n.Channel, Note: n.Note, Velocity: n.Velocity}
	hdr, _ := on.header(true)
	sent, err := c.writeDirect(proto.AppendEvent(nil, &hdr, nil))
	if err != nil {
		return 0, err
	}

	off := *ev
	off.typ = EventNoteOff
	off.payload = NoteData{Channel: n.Channel, Note: n.Note, Velocity: n.OffVelocity}
	off.relative = true
	off.tick = Tick(n.Duration)
	hdr, _ = off.header(false)
	if _, err := c.t.Write(c.handle, proto.AppendEvent(nil, &hdr, nil), false, !c.Nonblocking()); err != nil {
		return sent, transportError(err)
	}
	return sent, nil
}

func (c *Client) writeDirect(b []byte) (uint64, error) {
	block := !c.Nonblocking()
	if _, err := c.t.Write(c.handle, b, true, block); err != nil {
		return 0, transportError(err)
	}
	return c.nextSeq(), nil
}

// buffer appends an encoded event to the output buffer, flushing first if
// it is full. Events larger than the whole buffer are written through.
func (c *Client) buffer(b []byte) (uint64, error) {
	block := !c.Nonblocking()

	if len(b) > c.opts.outputBuffer {
		if err := c.flush(block); err != nil {
			return 0, err
		}
		if _, err := c.t.Write(c.handle, b, false, block); err != nil {
			return 0, transportError(err)
		}
		return c.nextSeq(), nil
	}

	c.mu.Lock()
	for len(c.out)+len(b) > c.opts.outputBuffer {
		c.mu.Unlock()
		if err := c.flush(block); err != nil && !errors.Is(err, ErrWouldBlock) {
			return 0, err
		}
		c.mu.Lock()
		if !block && len(c.out)+len(b) > c.opts.outputBuffer {
			c.mu.Unlock()
			return 0, ErrWouldBlock
		}
	}
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.out = append(c.out, b...)
	c.seq++
	n := c.seq
	c.mu.Unlock()
	return n, nil
}

func (c *Client) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// flush writes the output buffer to the transport. On failure the unwritten
// events go back to the front of the buffer; an event the subsystem
// rejected is discarded so it cannot wedge later drains.
func (c *Client) flush(block bool) error {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	pending := c.out
	c.out = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	n, err := c.t.Write(c.handle, pending, false, block)
	if err == nil {
		return nil
	}

	rest := pending[n:]
	if !errors.Is(err, ErrWouldBlock) {
		if _, _, size, derr := proto.DecodeEvent(rest); derr == nil {
			rest = rest[size:]
		} else {
			rest = nil
		}
		c.logf("flush failed after %d bytes: %v", n, err)
	}

	c.mu.Lock()
	if !c.closed {
		c.out = append(append([]byte(nil), rest...), c.out...)
	}
	c.mu.Unlock()
	return transportError(err)
}

// DrainOutput writes every buffered event to the subsystem, blocking until
// it has accepted them regardless of nonblocking mode.
func (c *Client) DrainOutput() error {
	err := c.flush(true)
	if err == nil || errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return fmt.Errorf("drain output: %w: %w", ErrIO, err)
}

// DropOutput discards buffered events that have not reached the subsystem.
func (c *Client) DropOutput() {
	c.mu.Lock()
	n := countEvents(c.out)
	c.out = nil
	c.mu.Unlock()
	if n > 0 {
		c.logf("dropped %d buffered events", n)
	}
}

// OutputPending returns how many events wait in the output buffer.
func (c *Client) OutputPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return countEvents(c.out)
}

// Receive returns the next input event. In nonblocking mode it returns
// (nil, nil) when nothing is pending.
func (c *Client) Receive() (*Event, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	block := !c.Nonblocking()

	b, err := c.t.Read(c.handle, block)
	if err != nil {
		if !block && errors.Is(err, ErrWouldBlock) {
			return nil, nil
		}
		return nil, transportError(err)
	}
	return eventFromWire(b)
}

func (c *Client) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return nil
}

// owns checks that p is a live port of this client.
func (c *Client) owns(p *Port) error {
	if p == nil {
		return fmt.Errorf("nil port: %w", ErrNoSuchEndpoint)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if p.c != c || p.deleted {
		return fmt.Errorf("port %s: %w", p.Addr(), ErrNoSuchEndpoint)
	}
	return nil
}

func (c *Client) logf(format string, args ...any) {
	if c.opts.logger != nil {
		c.opts.logger.Debug(fmt.Sprintf(format, args...), "client", c.id)
		return
	}
	debug.Log("seq", format, args...)
}

// transportError passes sentinel errors through and wraps anything else the
// transport returns as ErrIO.
func transportError(err error) error {
	for _, known := range []error{
		ErrConnection, ErrConnectionClosed, ErrInvalidCapability, ErrInvalidParameter,
		ErrNoSuchEndpoint, ErrNoSuchQueue, ErrWouldBlock, ErrInvalidEvent,
		ErrAmbiguousDestination, ErrIO, ErrPermission,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

func countEvents(b []byte) int {
	n := 0
	proto.EachEvent(b, func(proto.Header, []byte) error {
		n++
		return nil
	})
	return n
}
