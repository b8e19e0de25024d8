package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"go-midiseq/bridge"
	"go-midiseq/config"
	"go-midiseq/hub"
	"go-midiseq/player"
	"go-midiseq/seq"
	"go-midiseq/theme"
	"go-midiseq/tui"
)

// testPattern is one bar of drums on channel 10.
func testPattern(ppq int) *player.Pattern {
	beat := seq.Tick(ppq)
	p := &player.Pattern{Length: 4 * beat}
	for i := seq.Tick(0); i < 4; i++ {
		p.Steps = append(p.Steps, player.Step{Tick: i * beat, Channel: 9, Note: 36, Velocity: 110, Length: beat / 4})
	}
	for _, i := range []seq.Tick{1, 3} {
		p.Steps = append(p.Steps, player.Step{Tick: i * beat, Channel: 9, Note: 38, Velocity: 100, Length: beat / 4})
	}
	for i := seq.Tick(0); i < 8; i++ {
		p.Steps = append(p.Steps, player.Step{Tick: i * beat / 2, Channel: 9, Note: 42, Velocity: 70, Length: beat / 8})
	}
	return p
}

func runMonitor(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	bpm := fs.Float64("bpm", 120, "tempo of the test pattern")
	in := fs.String("in", "", "hardware input to monitor (name substring)")
	out := fs.String("out", "", "hardware output to play the test pattern on (name substring)")
	palette := fs.String("palette", "", "GIMP palette file")
	debugLog := commonFlags(fs, cfg)
	fs.Parse(args)

	th := theme.New(nil)
	if *palette != "" {
		p, err := theme.LoadGPL(*palette)
		if err != nil {
			return err
		}
		th = theme.New(p)
	}

	h, err := startHub(cfg, *debugLog)
	if err != nil {
		return err
	}
	defer h.Shutdown()

	mon, err := seq.Open(h, cfg.ClientOptions("")...)
	if err != nil {
		return err
	}
	defer mon.Close()
	monPort, err := mon.CreatePort("monitor", seq.CapWrite|seq.CapSubsWrite, seq.PortTypeApplication)
	if err != nil {
		return err
	}

	pc, err := seq.Open(h, cfg.ClientOptions("player")...)
	if err != nil {
		return err
	}
	defer pc.Close()
	outPort, err := pc.CreatePort("out", seq.CapRead|seq.CapSubsRead, seq.PortTypeMIDIGeneric|seq.PortTypeApplication)
	if err != nil {
		return err
	}
	if err := mon.ConnectFrom(monPort, pc.ID(), outPort.ID()); err != nil {
		return err
	}

	pl, err := player.New(pc, outPort, cfg.PlayerOptions()...)
	if err != nil {
		return err
	}
	defer pl.Close()
	if err := pl.SetTempo(*bpm); err != nil {
		return err
	}
	pl.Add(testPattern(cfg.Queue.PPQ))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pl.Run(gctx) })

	if *in != "" || *out != "" {
		l, err := bridge.Ports(bridge.ScanTimeout)
		if err != nil {
			return err
		}
		if *in != "" {
			b, err := openBridge(h, cfg, l, *in, true)
			if err != nil {
				return err
			}
			if err := mon.ConnectFrom(monPort, b.Client().ID(), b.Port().ID()); err != nil {
				return err
			}
			g.Go(func() error { return b.Run(gctx) })
		}
		if *out != "" {
			b, err := openBridge(h, cfg, l, *out, false)
			if err != nil {
				return err
			}
			if err := pc.ConnectTo(outPort, b.Client().ID(), b.Port().ID()); err != nil {
				return err
			}
			g.Go(func() error { return b.Run(gctx) })
		}
	}

	if err := pl.Play(); err != nil {
		return err
	}
	m := tui.NewModel(mon, pl.Queue(), pl, th)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, runErr := prog.Run()

	cancel()
	mon.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	if fm, ok := final.(tui.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

// openBridge opens a one-way bridge on the first hardware port matching
// pattern.
func openBridge(h *hub.Hub, cfg *config.Config, l bridge.PortList, pattern string, input bool) (*bridge.Bridge, error) {
	in, out := l.Find(pattern)
	name := "bridge " + pattern
	if input {
		if in == nil {
			return nil, fmt.Errorf("no input port matching %q", pattern)
		}
		return bridge.Open(h, name, in, nil, cfg.ClientOptions(name)...)
	}
	if out == nil {
		return nil, fmt.Errorf("no output port matching %q", pattern)
	}
	return bridge.Open(h, name, nil, out, cfg.ClientOptions(name)...)
}
