// Package hub is an in-process sequencer subsystem. It implements
// proto.Transport with clients, ports, subscriptions and tick queues, and runs
// a single release goroutine that hands scheduled events to their
// destinations when their queue reaches the scheduled tick.
package hub

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"go-midiseq/debug"
	"go-midiseq/proto"
)

// Defaults mirror the kernel sequencer's per-client pools.
const (
	DefaultInputDepth = 200
	DefaultPoolSize   = 500
)

type options struct {
	clock      clockwork.Clock
	inputDepth int
	poolSize   int
}

// Option configures a Hub.
type Option func(*options)

// WithClock sets the time source (tests pass clockwork.NewFakeClock()).
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithInputDepth sets how many events a client's input FIFO holds before
// further deliveries are dropped as overruns.
func WithInputDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.inputDepth = n
		}
	}
}

// WithPoolSize sets how many scheduled events a client may have waiting in
// queues before writes block (or fail with ErrWouldBlock).
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// Hub is the subsystem. The zero value is not usable; call New.
type Hub struct {
	opts options

	mu         sync.Mutex
	clients    map[int]*client
	handles    map[proto.Handle]*client
	nextHandle proto.Handle
	lastClient int // ids are handed out round-robin after this one
	queues     [proto.QueueMax]*queue
	seq        uint64 // enqueue counter, FIFO tie-break for equal ticks
	closed     bool

	interruptChan chan struct{} // signal release loop to recalculate
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

var _ proto.Transport = (*Hub)(nil)

// New creates a hub and starts its release loop.
func New(opts ...Option) *Hub {
	o := options{
		clock:      clockwork.NewRealClock(),
		inputDepth: DefaultInputDepth,
		poolSize:   DefaultPoolSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hub{
		opts:          o,
		clients:       make(map[int]*client),
		handles:       make(map[proto.Handle]*client),
		nextHandle:    1,
		lastClient:    proto.ClientFirst - 1,
		interruptChan: make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
	h.clients[proto.ClientSystem] = newSystemClient(h)

	h.wg.Add(1)
	go h.releaseLoop()
	return h
}

// Clock returns the hub's time source.
func (h *Hub) Clock() clockwork.Clock {
	return h.opts.clock
}

// Shutdown closes every client and stops the release loop. Subsequent
// Open calls fail with ErrConnection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, c := range h.handles {
		h.closeClient(c)
	}
	h.mu.Unlock()

	close(h.stopChan)
	h.wg.Wait()
}

// Open connects a new client.
func (h *Hub) Open(mode proto.OpenMode) (proto.Handle, error) {
	if mode&proto.OpenDuplex == 0 {
		return 0, fmt.Errorf("open mode %d: %w", mode, proto.ErrInvalidParameter)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, proto.ErrConnection
	}

	// round-robin, so an address of a closed client keeps failing until the
	// ids wrap around
	id := -1
	span := proto.ClientMax - proto.ClientFirst
	for n := 1; n <= span; n++ {
		i := proto.ClientFirst + (h.lastClient-proto.ClientFirst+n)%span
		if _, used := h.clients[i]; !used {
			id = i
			break
		}
	}
	if id < 0 {
		return 0, fmt.Errorf("no free client slots: %w", proto.ErrConnection)
	}

	h.lastClient = id
	c := newClient(h, id, mode)
	c.handle = h.nextHandle
	h.nextHandle++
	h.clients[id] = c
	h.handles[c.handle] = c

	debug.Log("hub", "client %d opened (handle=%d mode=%d)", id, c.handle, mode)
	return c.handle, nil
}

// Close disconnects a client, releasing its ports, subscriptions, queues and
// pending events. Blocked reads and writes on it return ErrConnectionClosed.
func (h *Hub) Close(handle proto.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.handles[handle]
	if !ok {
		return proto.ErrConnectionClosed
	}
	h.closeClient(c)
	return nil
}

func (h *Hub) closeClient(c *client) {
	for id, q := range h.queues {
		if q == nil {
			continue
		}
		if q.owner == c.id {
			h.freeQueue(id)
			continue
		}
		h.dropOwned(q, c.id)
	}
	for _, p := range c.portList() {
		h.removePort(c, p)
	}

	c.closed = true
	c.input = nil
	c.inputCond.Broadcast()
	c.poolCond.Broadcast()

	delete(h.handles, c.handle)
	delete(h.clients, c.id)
	h.interrupt()

	debug.Log("hub", "client %d closed (overruns=%d)", c.id, c.overruns)
}

// ClientID returns the subsystem-assigned client number.
func (h *Hub) ClientID(handle proto.Handle) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return 0, err
	}
	return c.id, nil
}

// SetClientName sets the name shown by Clients.
func (h *Hub) SetClientName(handle proto.Handle, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return err
	}
	c.name = name
	return nil
}

// Clients enumerates connected clients (system client included), sorted by
// client number. Ports flagged CapNoExport are hidden.
func (h *Hub) Clients() []proto.ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []proto.ClientInfo
	for _, c := range h.clients {
		info := proto.ClientInfo{Client: c.id, Name: c.name}
		for _, p := range c.portList() {
			if p.caps&proto.CapNoExport != 0 {
				continue
			}
			info.Ports = append(info.Ports, proto.PortInfo{
				Addr: p.addr,
				Name: p.name,
				Caps: p.caps,
				Type: p.typ,
			})
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

// Overruns returns how many deliveries to a client were dropped because its
// input FIFO was full.
func (h *Hub) Overruns(handle proto.Handle) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookup(handle)
	if err != nil {
		return 0, err
	}
	return c.overruns, nil
}

func (h *Hub) lookup(handle proto.Handle) (*client, error) {
	c, ok := h.handles[handle]
	if !ok || c.closed {
		return nil, proto.ErrConnectionClosed
	}
	return c, nil
}

// interrupt signals the release loop to recalculate (queue state changed)
func (h *Hub) interrupt() {
	select {
	case h.interruptChan <- struct{}{}:
	default:
	}
}
