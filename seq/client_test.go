package seq_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go-midiseq/hub"
	"go-midiseq/proto"
	"go-midiseq/seq"
)

func TestOpenAfterShutdown(t *testing.T) {
	h, _ := newHub(t)
	h.Shutdown()
	if _, err := seq.Open(h); !errors.Is(err, seq.ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
}

func TestClientName(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h, seq.WithName("recorder"))
	if c.ID() < proto.ClientFirst {
		t.Errorf("Expected user client id >= %d, got %d", proto.ClientFirst, c.ID())
	}

	found := false
	for _, info := range h.Clients() {
		if info.Client == c.ID() {
			found = info.Name == "recorder"
		}
	}
	if !found {
		t.Error("Client name not visible in enumeration")
	}
}

func TestCreatePort(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)

	if _, err := c.CreatePort("none", seq.CapSyncRead|seq.CapDuplex, seq.PortTypeApplication); !errors.Is(err, seq.ErrInvalidCapability) {
		t.Errorf("Expected ErrInvalidCapability, got %v", err)
	}

	p, err := c.CreatePort("out", seq.CapRead|seq.CapSubsRead, seq.PortTypeMIDIGeneric)
	if err != nil {
		t.Fatalf("CreatePort failed: %v", err)
	}
	if p.ID() != 0 || p.Name() != "out" || p.Client() != c {
		t.Errorf("Unexpected port %s", p)
	}
	if got := p.Addr(); got.Client != uint8(c.ID()) || got.Port != 0 {
		t.Errorf("Unexpected address %s", got)
	}
	if len(c.Ports()) != 1 {
		t.Errorf("Expected 1 port, got %d", len(c.Ports()))
	}

	if err := p.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := p.Delete(); !errors.Is(err, seq.ErrNoSuchEndpoint) {
		t.Errorf("Expected ErrNoSuchEndpoint deleting twice, got %v", err)
	}
}

// Two clients: B subscribes to A's port, A sends a direct note-on, B's
// blocking Receive returns it.
func TestSubscribedDirectNoteOn(t *testing.T) {
	h, _ := newHub(t)
	a := openClient(t, h, seq.WithName("A"))
	b := openClient(t, h, seq.WithName("B"))

	ap, err := a.CreatePort("out", seq.CapRead|seq.CapSubsRead, seq.PortTypeMIDIGeneric|seq.PortTypeApplication)
	if err != nil {
		t.Fatalf("CreatePort A failed: %v", err)
	}
	bp, err := b.CreatePort("in", seq.CapWrite|seq.CapSubsWrite, seq.PortTypeMIDIGeneric|seq.PortTypeApplication)
	if err != nil {
		t.Fatalf("CreatePort B failed: %v", err)
	}
	if err := b.ConnectFrom(bp, a.ID(), ap.ID()); err != nil {
		t.Fatalf("ConnectFrom failed: %v", err)
	}
	// already connected
	if err := b.ConnectFrom(bp, a.ID(), ap.ID()); err != nil {
		t.Fatalf("Repeated ConnectFrom failed: %v", err)
	}

	ev := seq.NewEvent()
	ev.SetSource(ap)
	ev.SetSubscribers()
	ev.SetNoteOn(3, 64, 90)
	if _, err := a.Send(ev, true); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := receive(t, b)
	if got.Type() != seq.EventNoteOn {
		t.Fatalf("Expected note-on, got %s", got.Type())
	}
	n, ok := got.Note()
	if !ok || n.Channel != 3 || n.Note != 64 || n.Velocity != 90 {
		t.Errorf("Unexpected note %+v", n)
	}
	if got.Source() != ap.Addr() {
		t.Errorf("Expected source %s, got %s", ap.Addr(), got.Source())
	}
	if got.Dest() != bp.Addr() {
		t.Errorf("Expected dest %s, got %s", bp.Addr(), got.Dest())
	}
	if !got.IsDirect() {
		t.Error("Expected received event to be marked direct")
	}

	if err := b.DisconnectFrom(bp, a.ID(), ap.ID()); err != nil {
		t.Fatalf("DisconnectFrom failed: %v", err)
	}
	if _, err := a.Send(ev, true); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	b.SetNonblocking(true)
	if ev, err := b.Receive(); ev != nil || err != nil {
		t.Errorf("Expected nothing after disconnect, got %v %v", ev, err)
	}
}

func TestConnectTo(t *testing.T) {
	h, _ := newHub(t)
	a := openClient(t, h)
	b := openClient(t, h)
	ap, _ := a.CreatePort("out", seq.CapRead, seq.PortTypeApplication)
	bp, _ := b.CreatePort("in", seq.CapWrite|seq.CapSubsWrite, seq.PortTypeApplication)

	if err := a.ConnectTo(ap, b.ID(), bp.ID()); err != nil {
		t.Fatalf("ConnectTo failed: %v", err)
	}
	ev := seq.NewEvent()
	ev.SetSource(ap)
	ev.SetSubscribers()
	ev.SetController(0, 7, 100)
	if _, err := a.Send(ev, true); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := receive(t, b)
	if ctl, ok := got.Control(); !ok || ctl.Param != 7 || ctl.Value != 100 {
		t.Errorf("Unexpected controller %+v", ctl)
	}

	if err := a.DisconnectTo(ap, b.ID(), bp.ID()); err != nil {
		t.Fatalf("DisconnectTo failed: %v", err)
	}
}

func TestConnectErrors(t *testing.T) {
	h, _ := newHub(t)
	a := openClient(t, h)
	b := openClient(t, h)
	ap, _ := a.CreatePort("out", seq.CapRead, seq.PortTypeApplication)
	bp, _ := b.CreatePort("in", seq.CapWrite, seq.PortTypeApplication)

	tests := []struct {
		name string
		err  error
	}{
		{"missing remote client", b.ConnectFrom(bp, 190, 0)},
		{"missing remote port", b.ConnectFrom(bp, a.ID(), 9)},
		{"remote not subscribable", b.ConnectFrom(bp, a.ID(), ap.ID())},
		{"local port of another client", b.ConnectFrom(ap, a.ID(), ap.ID())},
		{"nil local port", b.ConnectTo(nil, a.ID(), ap.ID())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, seq.ErrNoSuchEndpoint) {
				t.Errorf("Expected ErrNoSuchEndpoint, got %v", tt.err)
			}
		})
	}
}

func TestSendValidation(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)

	// queued destination without a queue/tick
	ev := noteTo(p, 60)
	if _, err := c.Send(ev, false); !errors.Is(err, seq.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent for unscheduled event, got %v", err)
	}

	if _, err := c.Send(seq.NewEvent(), true); !errors.Is(err, seq.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent for untyped event, got %v", err)
	}

	ev = seq.NewEvent()
	ev.SetNoteOn(0, 60, 100)
	if _, err := c.Send(ev, true); !errors.Is(err, seq.ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent without destination, got %v", err)
	}

	if c.OutputPending() != 0 {
		t.Errorf("Rejected events must not be buffered, have %d", c.OutputPending())
	}
}

func TestDirectWinsOverSchedule(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)
	q := allocQueue(t, c)

	ev := noteTo(p, 61)
	ev.ScheduleTick(q, false, 960)
	ev.SetDirect()
	if _, err := c.Send(ev, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := receive(t, c)
	if !got.IsDirect() {
		t.Error("Expected direct delivery")
	}
}

func TestStrictValidation(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h, seq.WithStrictValidation(true))
	p := loopback(t, c)
	q := allocQueue(t, c)

	ev := noteTo(p, 61)
	ev.ScheduleTick(q, false, 960)
	if _, err := c.Send(ev, true); !errors.Is(err, seq.ErrAmbiguousDestination) {
		t.Errorf("Expected ErrAmbiguousDestination, got %v", err)
	}
}

func TestSequenceNumbers(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)

	var last uint64
	for i := 0; i < 3; i++ {
		n, err := c.Send(noteTo(p, uint8(60+i)), true)
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if n <= last {
			t.Errorf("Sequence number %d not after %d", n, last)
		}
		last = n
	}
}

func TestNonblockingReceiveEmpty(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h, seq.WithNonblocking(true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			ev, err := c.Receive()
			if ev != nil || err != nil {
				t.Errorf("Expected (nil, nil), got %v %v", ev, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nonblocking Receive blocked")
	}
}

func TestCloseWakesReceive(t *testing.T) {
	h, _ := newHub(t)
	c, err := seq.Open(h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, seq.ErrConnectionClosed) {
			t.Errorf("Expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive not woken by Close")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := c.AllocQueue(); !errors.Is(err, seq.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestSysExRoundTrip(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)

	for _, n := range []int{0, 1, 70000} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}

		ev := seq.NewEvent()
		ev.SetSource(p)
		ev.SetDestination(p.Addr())
		if got := ev.SetSysEx(data); got != n {
			t.Errorf("SetSysEx returned %d, want %d", got, n)
		}
		if _, err := c.Send(ev, true); err != nil {
			t.Fatalf("Send %d bytes failed: %v", n, err)
		}

		got := receive(t, c)
		if got.Type() != seq.EventSysEx {
			t.Fatalf("Expected sysex, got %s", got.Type())
		}
		if !bytes.Equal(got.VariablePayload(), data) {
			t.Errorf("Payload of %d bytes did not round trip (got %d bytes)", n, len(got.VariablePayload()))
		}
	}
}

func TestLargeSysExThroughQueue(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h, seq.WithOutputBuffer(1024))
	p := loopback(t, c)
	q := allocQueue(t, c)
	if err := q.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	data := bytes.Repeat([]byte{0x42}, 64*1024+5)
	ev := seq.NewEvent()
	ev.SetSource(p)
	ev.SetDestination(p.Addr())
	ev.SetSysEx(data)
	ev.ScheduleTick(q, true, 0)
	if _, err := c.Send(ev, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if c.OutputPending() != 0 {
		t.Errorf("Oversized event should bypass the buffer, %d pending", c.OutputPending())
	}

	got := receive(t, c)
	if !bytes.Equal(got.VariablePayload(), data) {
		t.Errorf("Payload did not round trip (got %d bytes)", len(got.VariablePayload()))
	}
}

func TestOutputBufferFull(t *testing.T) {
	h, _ := newHub(t, hub.WithPoolSize(1))
	c := openClient(t, h, seq.WithOutputBuffer(proto.HeaderSize), seq.WithNonblocking(true))
	p := loopback(t, c)
	q := allocQueue(t, c)

	send := func(note uint8) error {
		ev := noteTo(p, note)
		ev.ScheduleTick(q, false, 10)
		_, err := c.Send(ev, false)
		return err
	}

	if err := send(60); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	// flushes the first event into the subsystem pool
	if err := send(61); err != nil {
		t.Fatalf("Second send failed: %v", err)
	}
	// pool and buffer are both full now
	if err := send(62); !errors.Is(err, seq.ErrWouldBlock) {
		t.Fatalf("Expected ErrWouldBlock, got %v", err)
	}
	if n := c.OutputPending(); n != 1 {
		t.Errorf("Expected 1 buffered event, got %d", n)
	}

	c.DropOutput()
	if n := c.OutputPending(); n != 0 {
		t.Errorf("Expected empty buffer after drop, got %d", n)
	}
}

func TestDropOutput(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)
	q := allocQueue(t, c)

	for i := 0; i < 3; i++ {
		ev := noteTo(p, uint8(60+i))
		ev.ScheduleTick(q, false, 0)
		if _, err := c.Send(ev, false); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if n := c.OutputPending(); n != 3 {
		t.Fatalf("Expected 3 buffered events, got %d", n)
	}

	c.DropOutput()
	if err := c.DrainOutput(); err != nil {
		t.Fatalf("DrainOutput failed: %v", err)
	}
	st, err := q.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Events != 0 {
		t.Errorf("Dropped events reached the queue: %d", st.Events)
	}
}

func TestDrainReportsStaleQueue(t *testing.T) {
	h, _ := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)
	q := allocQueue(t, c)
	if err := q.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	ev := noteTo(p, 60)
	ev.ScheduleTick(q, false, 0)
	if _, err := c.Send(ev, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	err := c.DrainOutput()
	if !errors.Is(err, seq.ErrIO) || !errors.Is(err, seq.ErrNoSuchQueue) {
		t.Errorf("Expected ErrIO wrapping ErrNoSuchQueue, got %v", err)
	}
	if n := c.OutputPending(); n != 0 {
		t.Errorf("Rejected event should leave the buffer, %d pending", n)
	}
}

func TestClosedClientRejectsPorts(t *testing.T) {
	h, _ := newHub(t)
	c, err := seq.Open(h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p := loopback(t, c)
	c.Close()

	if err := c.ConnectFrom(p, 0, 1); !errors.Is(err, seq.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
	if _, err := c.Send(noteTo(p, 60), true); !errors.Is(err, seq.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
	if _, err := c.CreatePort("late", seq.CapRead, 0); !errors.Is(err, seq.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestScheduledNoteWithDuration(t *testing.T) {
	h, fc := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)
	q := allocQueue(t, c)

	ev := seq.NewEvent()
	ev.SetSource(p)
	ev.SetDestination(p.Addr())
	ev.SetNote(0, 60, 100, 96)
	ev.ScheduleTick(q, true, 0)
	if _, err := c.Send(ev, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := q.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.DrainOutput(); err != nil {
		t.Fatalf("DrainOutput failed: %v", err)
	}

	on := receive(t, c)
	if n, _ := on.Note(); on.Type() != seq.EventNoteOn || n.Note != 60 || n.Velocity != 100 {
		t.Fatalf("Expected note-on 60/100, got %s", on)
	}

	advance(fc, 500*time.Millisecond)
	off := receive(t, c)
	if n, _ := off.Note(); off.Type() != seq.EventNoteOff || n.Note != 60 {
		t.Fatalf("Expected note-off 60, got %s", off)
	}
	if delta := off.Time() - on.Time(); delta != 96 {
		t.Errorf("Expected 96 ticks between note-on and note-off, got %d", delta)
	}
}

func TestDirectNoteWithDuration(t *testing.T) {
	h, fc := newHub(t)
	c := openClient(t, h)
	p := loopback(t, c)
	q := allocQueue(t, c)

	ev := seq.NewEvent()
	ev.SetSource(p)
	ev.SetDestination(p.Addr())
	ev.SetNote(1, 64, 90, 96)
	if _, err := c.Send(ev, true); !errors.Is(err, seq.ErrInvalidEvent) {
		t.Fatalf("Expected ErrInvalidEvent for a direct note without a queue, got %v", err)
	}

	ev.ScheduleTick(q, false, 0)
	if _, err := c.Send(ev, true); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	on := receive(t, c)
	if !on.IsDirect() || on.Type() != seq.EventNoteOn {
		t.Fatalf("Expected a direct note-on, got %s", on)
	}
	if st, _ := q.Status(); st.Events != 1 {
		t.Fatalf("Expected the note-off waiting on the queue, got %d events", st.Events)
	}

	if err := q.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	advance(fc, 500*time.Millisecond)
	off := receive(t, c)
	if n, _ := off.Note(); off.Type() != seq.EventNoteOff || n.Channel != 1 || n.Note != 64 || off.Time() != 96 {
		t.Errorf("Expected note-off 1/64 at tick 96, got %s", off)
	}
}
