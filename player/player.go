// Package player keeps a sequencer queue filled a lookahead window ahead of
// its tick position. Sources generate events; the player schedules them on
// its own queue and sends them to its port's subscribers.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go-midiseq/debug"
	"go-midiseq/seq"
)

const (
	DefaultLookahead = seq.DefaultPPQ / 2
	DefaultPeriod    = 50 * time.Millisecond

	minBPM = 20
	maxBPM = 300
)

type options struct {
	lookahead seq.Tick
	period    time.Duration
	clock     clockwork.Clock
	ppq       int
	tempo     int
}

type Option func(*options)

// WithLookahead sets how many ticks ahead of the queue position events are
// scheduled.
func WithLookahead(ticks seq.Tick) Option {
	return func(o *options) {
		if ticks > 0 {
			o.lookahead = ticks
		}
	}
}

// WithPeriod sets how often Run refills the queue.
func WithPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.period = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithPPQ(ppq int) Option {
	return func(o *options) {
		if ppq > 0 {
			o.ppq = ppq
		}
	}
}

// WithTempo sets the initial tempo in microseconds per quarter note.
func WithTempo(tempo int) Option {
	return func(o *options) {
		if tempo > 0 {
			o.tempo = tempo
		}
	}
}

// Player schedules events from its sources on a queue it owns.
type Player struct {
	c    *seq.Client
	port *seq.Port
	opts options

	mu          sync.Mutex
	q           *seq.Queue
	sources     []Source
	playing     bool
	queuedUntil seq.Tick

	interrupt chan struct{}
}

// New allocates a queue on c. Events go out through port, which must belong
// to c and be readable by subscribers.
func New(c *seq.Client, port *seq.Port, opts ...Option) (*Player, error) {
	o := options{
		lookahead: DefaultLookahead,
		period:    DefaultPeriod,
		clock:     clockwork.NewRealClock(),
		ppq:       seq.DefaultPPQ,
		tempo:     seq.DefaultTempo,
	}
	for _, opt := range opts {
		opt(&o)
	}

	q, err := c.AllocQueue()
	if err != nil {
		return nil, fmt.Errorf("player queue: %w", err)
	}
	if err := q.SetTempo(o.ppq, o.tempo); err != nil {
		q.Free()
		return nil, err
	}
	return &Player{
		c:         c,
		port:      port,
		opts:      o,
		q:         q,
		interrupt: make(chan struct{}, 1),
	}, nil
}

// Queue returns the queue the player currently schedules on. Seek replaces
// it.
func (p *Player) Queue() *seq.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q
}

// Add registers a source. It is filled from the current window onwards.
func (p *Player) Add(src Source) {
	p.mu.Lock()
	p.sources = append(p.sources, src)
	p.mu.Unlock()
	p.Interrupt()
}

// Interrupt asks Run to refill now, e.g. after a source changed.
func (p *Player) Interrupt() {
	select {
	case p.interrupt <- struct{}{}:
	default:
	}
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the queue's tick.
func (p *Player) Position() (seq.Tick, error) {
	return p.Queue().TickTime()
}

// SetTempo changes the tempo at the current tick. bpm is clamped to 20..300.
func (p *Player) SetTempo(bpm float64) error {
	bpm = min(max(bpm, minBPM), maxBPM)
	return p.Queue().ChangeTempo(seq.BPM(bpm), nil)
}

// Play starts the queue, or resumes it after Pause, and fills the first
// window.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	q := p.q
	p.mu.Unlock()

	if err := q.Continue(nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
	debug.Log("player", "play on %s", q)
	return p.Fill()
}

// Pause freezes the queue and silences sounding notes. Events already
// scheduled stay queued and play on the next Play.
func (p *Player) Pause() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	q := p.q
	p.mu.Unlock()

	if err := q.Stop(nil); err != nil {
		return err
	}
	return p.allNotesOff()
}

// Seek moves playback to tick. Events already scheduled are discarded by
// replacing the queue, keeping its tempo.
func (p *Player) Seek(tick seq.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.q.Status()
	if err != nil {
		return err
	}
	if err := p.q.Stop(nil); err != nil {
		return err
	}
	p.c.DropOutput()
	if err := p.q.Free(); err != nil {
		return err
	}

	q, err := p.c.AllocQueue()
	if err != nil {
		return fmt.Errorf("player queue: %w", err)
	}
	p.q = q
	if err := q.SetTempo(st.PPQ, st.Tempo); err != nil {
		return err
	}
	if err := q.SetPositionTick(tick, nil); err != nil {
		return err
	}
	p.queuedUntil = tick
	debug.Log("player", "seek to %d on %s", tick, q)

	if err := p.allNotesOff(); err != nil {
		return err
	}
	if p.playing {
		if err := q.Continue(nil); err != nil {
			return err
		}
		return p.fillLocked()
	}
	return nil
}

// Fill schedules every source event up to one lookahead window past the
// queue position. It does nothing while paused.
func (p *Player) Fill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	return p.fillLocked()
}

func (p *Player) fillLocked() error {
	now, err := p.q.TickTime()
	if err != nil {
		return err
	}
	target := now + p.opts.lookahead
	if p.queuedUntil >= target {
		return nil
	}

	var sendErr error
	n := 0
	emit := func(tick seq.Tick, ev *seq.Event) {
		if sendErr != nil {
			return
		}
		ev.SetSource(p.port)
		ev.SetSubscribers()
		ev.ScheduleTick(p.q, false, tick)
		if _, sendErr = p.c.Send(ev, false); sendErr == nil {
			n++
		}
	}
	for _, src := range p.sources {
		src.Fill(p.queuedUntil, target, emit)
	}
	if sendErr != nil {
		return fmt.Errorf("fill %d..%d: %w", p.queuedUntil, target, sendErr)
	}
	if err := p.c.DrainOutput(); err != nil {
		return err
	}
	debug.LogEvery(20, "player", "filled %d..%d (%d events)", p.queuedUntil, target, n)
	p.queuedUntil = target
	return nil
}

func (p *Player) allNotesOff() error {
	for ch := uint8(0); ch < 16; ch++ {
		ev := seq.NewEvent()
		ev.SetSource(p.port)
		ev.SetSubscribers()
		ev.SetController(ch, 123, 0)
		if _, err := p.c.Send(ev, true); err != nil {
			return err
		}
	}
	return nil
}

// Run refills the queue every period, and at once on Interrupt, until ctx is
// done. Blocking; run it in a goroutine.
func (p *Player) Run(ctx context.Context) error {
	ticker := p.opts.clock.NewTicker(p.opts.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.interrupt:
		case <-ticker.Chan():
		}
		if err := p.Fill(); err != nil {
			return err
		}
	}
}

// Close frees the player's queue.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return p.q.Free()
}
