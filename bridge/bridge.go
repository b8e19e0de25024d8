// Package bridge connects a sequencer port to hardware MIDI ports through
// gomidi. Messages from the input port are sent direct to the bridge port's
// subscribers; events delivered to the bridge port are written to the
// output port.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-midiseq/debug"
	"go-midiseq/proto"
	"go-midiseq/seq"
)

const portCaps = seq.CapRead | seq.CapWrite | seq.CapSubsRead | seq.CapSubsWrite

// Stats counts traffic through a bridge.
type Stats struct {
	In      uint64 // messages from hardware sent to subscribers
	Out     uint64 // events written to hardware
	Skipped uint64 // messages or events with no counterpart
	Errors  uint64
}

// Bridge owns one sequencer client with a single duplex port.
type Bridge struct {
	c    *seq.Client
	port *seq.Port
	send func(gomidi.Message) error

	stopListen func()
	closeOnce  sync.Once

	in, out, skipped, errs atomic.Uint64
}

// Open creates a bridge between hardware ports in and out. Either may be nil
// for a one-way bridge.
func Open(t proto.Transport, name string, in drivers.In, out drivers.Out, opts ...seq.Option) (*Bridge, error) {
	var send func(gomidi.Message) error
	if out != nil {
		s, err := gomidi.SendTo(out)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", out, err)
		}
		send = s
	}

	b, err := newBridge(t, name, send, opts...)
	if err != nil {
		return nil, err
	}

	if in != nil {
		stop, err := gomidi.ListenTo(in, b.handle,
			gomidi.UseSysEx(),
			gomidi.HandleError(func(err error) {
				b.errs.Add(1)
				debug.Warn("bridge", "%s input: %v", name, err)
			}),
		)
		if err != nil {
			b.c.Close()
			return nil, fmt.Errorf("open input %s: %w", in, err)
		}
		b.stopListen = stop
	}
	debug.Log("bridge", "%s opened as %s (in=%v out=%v)", name, b.port.Addr(), in, out)
	return b, nil
}

// newBridge sets up the client and port. send may be nil, in which case
// events reaching the port are counted as skipped.
func newBridge(t proto.Transport, name string, send func(gomidi.Message) error, opts ...seq.Option) (*Bridge, error) {
	c, err := seq.Open(t, append([]seq.Option{seq.WithName(name)}, opts...)...)
	if err != nil {
		return nil, err
	}
	p, err := c.CreatePort(name, portCaps, seq.PortTypeMIDIGeneric|seq.PortTypeHardware|seq.PortTypePort)
	if err != nil {
		c.Close()
		return nil, err
	}
	return &Bridge{c: c, port: p, send: send}, nil
}

// Port is the sequencer port other clients connect to.
func (b *Bridge) Port() *seq.Port { return b.port }

func (b *Bridge) Client() *seq.Client { return b.c }

// handle is the gomidi listener callback.
func (b *Bridge) handle(msg gomidi.Message, timestampms int32) {
	ev, ok := FromMessage(msg)
	if !ok {
		b.skipped.Add(1)
		return
	}
	ev.SetSource(b.port)
	ev.SetSubscribers()
	if _, err := b.c.Send(ev, true); err != nil {
		b.errs.Add(1)
		if !errors.Is(err, seq.ErrConnectionClosed) {
			debug.Warn("bridge", "forward %s: %v", msg, err)
		}
		return
	}
	b.in.Add(1)
}

// Run writes events delivered to the bridge port to the output until ctx is
// done or the bridge is closed. Cancelling ctx closes the bridge.
func (b *Bridge) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-done:
		}
	}()

	for {
		ev, err := b.c.Receive()
		if err != nil {
			if errors.Is(err, seq.ErrConnectionClosed) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			return err
		}
		if ev == nil {
			continue
		}
		b.forward(ev)
	}
}

func (b *Bridge) forward(ev *seq.Event) {
	msg, ok := ToMessage(ev)
	if !ok || b.send == nil {
		b.skipped.Add(1)
		return
	}
	if err := b.send(msg); err != nil {
		b.errs.Add(1)
		debug.Warn("bridge", "send %s: %v", msg, err)
		return
	}
	b.out.Add(1)
}

func (b *Bridge) Stats() Stats {
	return Stats{
		In:      b.in.Load(),
		Out:     b.out.Load(),
		Skipped: b.skipped.Load(),
		Errors:  b.errs.Load(),
	}
}

// Close stops listening and closes the client. Safe to call more than once.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopListen != nil {
			b.stopListen()
		}
		err = b.c.Close()
	})
	return err
}
