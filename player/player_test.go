package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"go-midiseq/hub"
	"go-midiseq/seq"
)

type scheduled struct {
	tick seq.Tick
	typ  seq.EventType
	note uint8
}

func collect(src Source, from, to seq.Tick) []scheduled {
	var out []scheduled
	src.Fill(from, to, func(tick seq.Tick, ev *seq.Event) {
		n, _ := ev.Note()
		out = append(out, scheduled{tick, ev.Type(), n.Note})
	})
	return out
}

func TestPatternFill(t *testing.T) {
	p := &Pattern{
		Length: 96,
		Steps: []Step{
			{Tick: 0, Note: 36, Velocity: 100, Length: 12},
			{Tick: 48, Note: 38, Velocity: 90},
			{Tick: 200, Note: 99}, // past the end, never played
		},
	}

	got := collect(p, 90, 200)
	want := []scheduled{
		{96, seq.EventNoteOn, 36},
		{108, seq.EventNoteOff, 36},
		{144, seq.EventNoteOn, 38},
		{145, seq.EventNoteOff, 38},
		{192, seq.EventNoteOn, 36},
		{204, seq.EventNoteOff, 36},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestPatternFillEmptyWindows(t *testing.T) {
	p := &Pattern{Length: 96, Steps: []Step{{Tick: 0, Note: 60}}}
	if got := collect(p, 10, 10); len(got) != 0 {
		t.Errorf("Expected nothing for an empty window, got %v", got)
	}
	if got := collect(p, 1, 96); len(got) != 0 {
		t.Errorf("Expected nothing between steps, got %v", got)
	}
	p.Mute = true
	if got := collect(p, 0, 960); len(got) != 0 {
		t.Errorf("Expected a muted pattern to stay silent, got %v", got)
	}
}

type fixture struct {
	fc       clockwork.FakeClock
	c        *seq.Client
	listener *seq.Client
	player   *Player
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClock()
	h := hub.New(hub.WithClock(fc))
	t.Cleanup(h.Shutdown)

	c, err := seq.Open(h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	out, err := c.CreatePort("out", seq.CapRead|seq.CapSubsRead, seq.PortTypeApplication)
	if err != nil {
		t.Fatalf("CreatePort failed: %v", err)
	}

	listener, err := seq.Open(h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	in, err := listener.CreatePort("in", seq.CapWrite, seq.PortTypeApplication)
	if err != nil {
		t.Fatalf("CreatePort failed: %v", err)
	}
	if err := listener.ConnectFrom(in, c.ID(), out.ID()); err != nil {
		t.Fatalf("ConnectFrom failed: %v", err)
	}

	p, err := New(c, out, append([]Option{WithLookahead(96)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{fc: fc, c: c, listener: listener, player: p}
}

func (f *fixture) receive(t *testing.T) *seq.Event {
	t.Helper()
	ch := make(chan *seq.Event, 1)
	go func() {
		ev, _ := f.listener.Receive()
		ch <- ev
	}()
	select {
	case ev := <-ch:
		if ev == nil {
			t.Fatal("Receive returned no event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return nil
}

func (f *fixture) expect(t *testing.T, typ seq.EventType, tick seq.Tick) {
	t.Helper()
	ev := f.receive(t)
	if ev.Type() != typ || ev.Time() != tick {
		t.Fatalf("Expected %s at %d, got %s", typ, tick, ev)
	}
}

func drum() *Pattern {
	return &Pattern{
		Length: 96,
		Steps: []Step{
			{Tick: 0, Note: 60, Velocity: 100, Length: 24},
			{Tick: 48, Note: 64, Velocity: 100, Length: 24},
		},
	}
}

func TestPlayerSchedulesAhead(t *testing.T) {
	f := newFixture(t)
	f.player.Add(drum())

	if err := f.player.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	f.expect(t, seq.EventNoteOn, 0)

	f.fc.BlockUntil(1)
	f.fc.Advance(125 * time.Millisecond)
	f.expect(t, seq.EventNoteOff, 24)

	st, _ := f.player.Queue().Status()
	if st.Events != 2 {
		t.Fatalf("Expected 2 events left in the window, got %d", st.Events)
	}

	if err := f.player.Fill(); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	st, _ = f.player.Queue().Status()
	if st.Events != 4 {
		t.Errorf("Expected the next window to add 2 events, got %d pending", st.Events)
	}
}

func TestPlayerPause(t *testing.T) {
	f := newFixture(t)
	if err := f.player.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := f.player.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	for ch := uint8(0); ch < 16; ch++ {
		ev := f.receive(t)
		c, ok := ev.Control()
		if !ok || ev.Type() != seq.EventController || c.Param != 123 || c.Channel != ch {
			t.Fatalf("Expected all-notes-off on channel %d, got %s", ch, ev)
		}
	}

	st, _ := f.player.Queue().Status()
	if st.Running || f.player.Playing() {
		t.Errorf("Expected paused queue, got %+v", st)
	}

	f.player.Add(drum())
	if err := f.player.Fill(); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if st, _ := f.player.Queue().Status(); st.Events != 0 {
		t.Errorf("Expected no scheduling while paused, got %d events", st.Events)
	}
}

func TestPlayerSeekDiscardsScheduled(t *testing.T) {
	f := newFixture(t)
	f.player.Add(drum())
	if err := f.player.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	f.expect(t, seq.EventNoteOn, 0)

	if err := f.player.Seek(480); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	for i := 0; i < 16; i++ {
		if ev := f.receive(t); ev.Type() != seq.EventController {
			t.Fatalf("Expected all-notes-off, got %s", ev)
		}
	}
	f.expect(t, seq.EventNoteOn, 480)

	f.fc.BlockUntil(1)
	f.fc.Advance(125 * time.Millisecond)
	f.expect(t, seq.EventNoteOff, 504)
}

func TestPlayerSetTempoClamps(t *testing.T) {
	f := newFixture(t)
	if err := f.player.SetTempo(1000); err != nil {
		t.Fatalf("SetTempo failed: %v", err)
	}
	st, _ := f.player.Queue().Status()
	if st.Tempo != seq.BPM(300) {
		t.Errorf("Expected tempo clamped to 300 bpm, got %d us", st.Tempo)
	}
}

func TestPlayerRunFillsOnInterrupt(t *testing.T) {
	f := newFixture(t, WithClock(clockwork.NewFakeClock()))
	if err := f.player.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	// nothing is scheduled, so no timer is armed
	f.fc.Advance(500 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.player.Run(ctx) }()

	f.player.Add(drum())
	f.expect(t, seq.EventNoteOn, 96)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
