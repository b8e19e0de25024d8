package seq

import "fmt"

// Port is an endpoint owned by a Client. It is valid until it is deleted or
// its client closes
type Port struct {
	c       *Client
	id      int
	name    string
	caps    Capability
	typ     PortType
	deleted bool
}

// ID returns the port number within its client
func (p *Port) ID() int { return p.id }

// Name returns the name the port was created with
func (p *Port) Name() string { return p.name }

// Caps returns the capability bits
func (p *Port) Caps() Capability { return p.caps }

// Type returns the port type tag
func (p *Port) Type() PortType { return p.typ }

// Client returns the owning client
func (p *Port) Client() *Client { return p.c }

// Addr returns the port's client:port address
func (p *Port) Addr() Addr {
	return Addr{Client: uint8(p.c.id), Port: uint8(p.id)}
}

// String formats the port as client:port "name"
func (p *Port) String() string {
	return fmt.Sprintf("%s %q", p.Addr(), p.name)
}

// Delete removes the port and its subscriptions
func (p *Port) Delete() error {
	if err := p.c.owns(p); err != nil {
		return err
	}
	if err := p.c.t.DeletePort(p.c.handle, p.id); err != nil {
		return err
	}
	p.c.mu.Lock()
	p.deleted = true
	delete(p.c.ports, p.id)
	p.c.mu.Unlock()
	return nil
}
