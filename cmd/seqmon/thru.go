package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"golang.org/x/sync/errgroup"

	"go-midiseq/bridge"
	"go-midiseq/config"
	"go-midiseq/seq"
)

// runThru forwards everything from a hardware input to a hardware output
// through a sequencer client, delaying it by a number of ticks when asked.
func runThru(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("thru", flag.ExitOnError)
	in := fs.String("in", "", "hardware input (name substring)")
	out := fs.String("out", "", "hardware output (name substring)")
	delay := fs.Uint("delay", 0, "delay in ticks")
	bpm := fs.Float64("bpm", 120, "tempo for -delay")
	save := fs.Bool("save", false, "remember -in and -out as auto-connect bridges")
	debugLog := commonFlags(fs, cfg)
	fs.Parse(args)

	if *in == "" && *out == "" {
		for _, b := range cfg.AutoConnectBridges() {
			switch b.Name {
			case "in":
				*in = b.Match
			case "out":
				*out = b.Match
			}
		}
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("need -in and -out (or saved bridges named in and out)")
	}
	if *save {
		cfg.AddBridge(config.BridgeConfig{Name: "in", Match: *in, AutoConnect: true})
		cfg.AddBridge(config.BridgeConfig{Name: "out", Match: *out, AutoConnect: true})
		if err := cfg.Save(); err != nil {
			return err
		}
	}

	h, err := startHub(cfg, *debugLog)
	if err != nil {
		return err
	}
	defer h.Shutdown()

	l, err := bridge.Ports(bridge.ScanTimeout)
	if err != nil {
		return err
	}
	src, err := openBridge(h, cfg, l, *in, true)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := openBridge(h, cfg, l, *out, false)
	if err != nil {
		return err
	}
	defer dst.Close()

	c, err := seq.Open(h, cfg.ClientOptions("thru")...)
	if err != nil {
		return err
	}
	defer c.Close()
	p, err := c.CreatePort("thru", seq.CapRead|seq.CapWrite|seq.CapSubsRead|seq.CapSubsWrite, seq.PortTypeApplication)
	if err != nil {
		return err
	}
	if err := c.ConnectFrom(p, src.Client().ID(), src.Port().ID()); err != nil {
		return err
	}
	if err := c.ConnectTo(p, dst.Client().ID(), dst.Port().ID()); err != nil {
		return err
	}

	var q *seq.Queue
	if *delay > 0 {
		if q, err = c.AllocQueue(); err != nil {
			return err
		}
		if err := q.SetTempo(cfg.Queue.PPQ, seq.BPM(*bpm)); err != nil {
			return err
		}
		if err := q.Start(nil); err != nil {
			return err
		}
	}

	fmt.Printf("%s -> %s (delay %d ticks). Ctrl+C to exit.\n", *in, *out, *delay)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(gctx) })
	g.Go(func() error { return dst.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})
	g.Go(func() error { return forward(c, p, q, seq.Tick(*delay)) })

	err = g.Wait()
	rx, tx := src.Stats(), dst.Stats()
	fmt.Printf("\nin: %d events (%d skipped), out: %d events (%d errors)\n", rx.In, rx.Skipped, tx.Out, tx.Errors)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, seq.ErrConnectionClosed) {
		return err
	}
	return nil
}

// forward resends every event arriving at p to p's subscribers, delayed on
// q when q is set.
func forward(c *seq.Client, p *seq.Port, q *seq.Queue, delay seq.Tick) error {
	for {
		ev, err := c.Receive()
		if err != nil {
			return err
		}
		ev.SetSource(p)
		ev.SetSubscribers()
		if q == nil {
			if _, err := c.Send(ev, true); err != nil {
				return err
			}
			continue
		}
		ev.ClearDirect()
		ev.ScheduleTick(q, true, delay)
		if _, err := c.Send(ev, false); err != nil {
			return err
		}
		if err := c.DrainOutput(); err != nil {
			return err
		}
	}
}
