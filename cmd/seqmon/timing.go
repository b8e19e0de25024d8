package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go-midiseq/config"
	"go-midiseq/seq"
)

// runTiming schedules one note per beat on a loopback port and reports how
// far each release lands from its ideal wall-clock time.
func runTiming(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("timing", flag.ExitOnError)
	bpm := fs.Float64("bpm", 120, "tempo")
	notes := fs.Int("notes", 16, "number of beats to measure")
	debugLog := commonFlags(fs, cfg)
	fs.Parse(args)
	if *notes <= 0 || *bpm <= 0 {
		return fmt.Errorf("notes and bpm must be positive")
	}

	h, err := startHub(cfg, *debugLog)
	if err != nil {
		return err
	}
	defer h.Shutdown()

	c, err := seq.Open(h, cfg.ClientOptions("timing")...)
	if err != nil {
		return err
	}
	defer c.Close()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	p, err := c.CreatePort("loop", seq.CapRead|seq.CapWrite, seq.PortTypeApplication)
	if err != nil {
		return err
	}
	q, err := c.AllocQueue()
	if err != nil {
		return err
	}
	if err := q.SetTempo(cfg.Queue.PPQ, seq.BPM(*bpm)); err != nil {
		return err
	}

	for i := 0; i < *notes; i++ {
		ev := seq.NewEvent()
		ev.SetSource(p)
		ev.SetDestination(p.Addr())
		ev.SetNoteOn(0, uint8(36+i%48), 100)
		ev.ScheduleTick(q, false, seq.Tick(i*cfg.Queue.PPQ))
		if _, err := c.Send(ev, false); err != nil {
			return err
		}
	}
	if err := c.DrainOutput(); err != nil {
		return err
	}

	beat := time.Duration(seq.BPM(*bpm)) * time.Microsecond
	fmt.Printf("%d notes at %.1f bpm (%s per beat, %d ppq)\n\n", *notes, *bpm, beat, cfg.Queue.PPQ)

	if err := q.Start(nil); err != nil {
		return err
	}
	start := time.Now()

	var worst, total time.Duration
	for i := 0; i < *notes; i++ {
		ev, err := c.Receive()
		if err != nil {
			return err
		}
		got := time.Since(start)
		want := time.Duration(i) * beat
		dev := got - want
		if dev < 0 {
			dev = -dev
		}
		total += dev
		worst = max(worst, dev)
		fmt.Printf("  beat %2d  tick %6d  %10s  %+8s\n", i+1, ev.Time(), got.Round(time.Microsecond), (got - want).Round(time.Microsecond))
	}

	fmt.Printf("\nmean deviation %s, worst %s\n",
		(total / time.Duration(*notes)).Round(time.Microsecond), worst.Round(time.Microsecond))
	return nil
}
