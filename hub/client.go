package hub

import (
	"fmt"
	"sort"
	"sync"

	"go-midiseq/proto"
)

type client struct {
	id     int
	handle proto.Handle
	name   string
	mode   proto.OpenMode
	closed bool

	ports    map[int]*port
	nextPort int

	// input FIFO of encoded events
	input     [][]byte
	inputCond *sync.Cond
	overruns  int

	// scheduled events owned by this client still waiting in queues
	pooled   int
	poolCond *sync.Cond
}

type port struct {
	addr proto.Addr
	name string
	caps proto.Capability
	typ  proto.PortType

	// outgoing subscription edges: events from this port sent to
	// subscribers fan out to each of these addresses
	subs map[proto.Addr]struct{}
}

func newClient(h *Hub, id int, mode proto.OpenMode) *client {
	return &client{
		id:        id,
		mode:      mode,
		ports:     make(map[int]*port),
		inputCond: sync.NewCond(&h.mu),
		poolCond:  sync.NewCond(&h.mu),
	}
}

// The system client owns the timer port (destination of queue control) and
// the announce port. It never reads input.
func newSystemClient(h *Hub) *client {
	c := newClient(h, proto.ClientSystem, proto.OpenOutput)
	c.name = "System"
	c.ports[proto.PortSystemTimer] = &port{
		addr: proto.SystemTimer,
		name: "Timer",
		caps: proto.CapRead | proto.CapWrite | proto.CapSubsRead,
		subs: make(map[proto.Addr]struct{}),
	}
	c.ports[proto.PortSystemAnnounce] = &port{
		addr: proto.Addr{Client: proto.ClientSystem, Port: proto.PortSystemAnnounce},
		name: "Announce",
		caps: proto.CapRead | proto.CapSubsRead,
		subs: make(map[proto.Addr]struct{}),
	}
	c.nextPort = 2
	return c
}

func (c *client) portList() []*port {
	ports := make([]*port, 0, len(c.ports))
	for _, p := range c.ports {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].addr.Port < ports[j].addr.Port })
	return ports
}

// CreatePort adds a port to the client. Port numbers are reused lowest-first.
func (h *Hub) CreatePort(handle proto.Handle, name string, caps proto.Capability, typ proto.PortType) (int, error) {
	if caps&proto.CapDirectional == 0 {
		return 0, fmt.Errorf("port %q caps %#x: %w", name, uint32(caps), proto.ErrInvalidCapability)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return 0, err
	}

	id := -1
	for i := 0; i < proto.AddressUnknown; i++ {
		if _, used := c.ports[i]; !used {
			id = i
			break
		}
	}
	if id < 0 {
		return 0, fmt.Errorf("client %d has no free port numbers: %w", c.id, proto.ErrInvalidParameter)
	}

	c.ports[id] = &port{
		addr: proto.Addr{Client: uint8(c.id), Port: uint8(id)},
		name: name,
		caps: caps,
		typ:  typ,
		subs: make(map[proto.Addr]struct{}),
	}
	return id, nil
}

// DeletePort removes a port and every subscription edge touching it.
func (h *Hub) DeletePort(handle proto.Handle, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return err
	}
	p, ok := c.ports[id]
	if !ok {
		return fmt.Errorf("port %d:%d: %w", c.id, id, proto.ErrNoSuchEndpoint)
	}
	h.removePort(c, p)
	return nil
}

func (h *Hub) removePort(c *client, p *port) {
	for _, other := range h.clients {
		for _, op := range other.ports {
			delete(op.subs, p.addr)
		}
	}
	delete(c.ports, int(p.addr.Port))
}

func (h *Hub) findPort(addr proto.Addr) (*client, *port, error) {
	c, ok := h.clients[int(addr.Client)]
	if !ok || c.closed {
		return nil, nil, fmt.Errorf("client %d: %w", addr.Client, proto.ErrNoSuchEndpoint)
	}
	p, ok := c.ports[int(addr.Port)]
	if !ok {
		return nil, nil, fmt.Errorf("port %s: %w", addr, proto.ErrNoSuchEndpoint)
	}
	return c, p, nil
}

// edge resolves a subscription request into sender and receiver ports. The
// remote side must advertise the matching subscription capability; the
// local side is owned by the caller and needs none.
func (h *Hub) edge(handle proto.Handle, local, remoteClient, remotePort int, dir proto.Direction) (*port, *port, error) {
	c, err := h.lookup(handle)
	if err != nil {
		return nil, nil, err
	}
	lp, ok := c.ports[local]
	if !ok {
		return nil, nil, fmt.Errorf("local port %d:%d: %w", c.id, local, proto.ErrNoSuchEndpoint)
	}
	if remoteClient < 0 || remoteClient > 255 || remotePort < 0 || remotePort > 255 {
		return nil, nil, fmt.Errorf("remote %d:%d: %w", remoteClient, remotePort, proto.ErrNoSuchEndpoint)
	}
	_, rp, err := h.findPort(proto.Addr{Client: uint8(remoteClient), Port: uint8(remotePort)})
	if err != nil {
		return nil, nil, err
	}

	switch dir {
	case proto.DirFrom:
		if rp.caps&proto.CapSubsRead == 0 {
			return nil, nil, fmt.Errorf("port %s is not subscribable for reading: %w", rp.addr, proto.ErrNoSuchEndpoint)
		}
		return rp, lp, nil
	case proto.DirTo:
		if rp.caps&proto.CapSubsWrite == 0 {
			return nil, nil, fmt.Errorf("port %s is not subscribable for writing: %w", rp.addr, proto.ErrNoSuchEndpoint)
		}
		return lp, rp, nil
	default:
		return nil, nil, fmt.Errorf("direction %d: %w", dir, proto.ErrInvalidParameter)
	}
}

// Connect adds a subscription edge. Connecting an existing edge is a no-op.
func (h *Hub) Connect(handle proto.Handle, local, remoteClient, remotePort int, dir proto.Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sender, receiver, err := h.edge(handle, local, remoteClient, remotePort, dir)
	if err != nil {
		return err
	}
	sender.subs[receiver.addr] = struct{}{}
	return nil
}

// Disconnect removes a subscription edge. Removing a missing edge is a no-op.
func (h *Hub) Disconnect(handle proto.Handle, local, remoteClient, remotePort int, dir proto.Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sender, receiver, err := h.edge(handle, local, remoteClient, remotePort, dir)
	if err != nil {
		return err
	}
	delete(sender.subs, receiver.addr)
	return nil
}
