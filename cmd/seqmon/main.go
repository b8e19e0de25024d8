// Command seqmon exercises the sequencer: it lists hardware ports, measures
// queue timing, monitors events in a terminal UI and bridges hardware
// through the in-process subsystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-midiseq/config"
	"go-midiseq/debug"
	"go-midiseq/hub"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "ports":
		err = listPorts()
	case "watch":
		err = watchPorts(ctx)
	case "timing":
		err = runTiming(ctx, cfg, args)
	case "monitor":
		err = runMonitor(ctx, cfg, args)
	case "thru":
		err = runThru(ctx, cfg, args)
	default:
		usage()
		return
	}
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("seqmon - sequencer test tool")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports    - List hardware MIDI ports")
	fmt.Println("  watch    - Report ports as they are plugged in and out")
	fmt.Println("  timing   - Measure queue release jitter against the wall clock")
	fmt.Println("  monitor  - Play a test pattern and show events live")
	fmt.Println("  thru     - Route a hardware input to an output, optionally delayed")
	fmt.Println("")
	fmt.Println("Run 'seqmon <command> -h' for command flags.")
}

// commonFlags adds the flags every subsystem command takes.
func commonFlags(fs *flag.FlagSet, cfg *config.Config) *bool {
	fs.IntVar(&cfg.Queue.PPQ, "ppq", cfg.Queue.PPQ, "queue resolution in ticks per quarter note")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug log level (debug, info, warn, error)")
	return fs.Bool("debug", false, "write ~/.config/go-midiseq/debug.log")
}

// startHub applies logging settings and starts the in-process subsystem.
func startHub(cfg *config.Config, debugLog bool) (*hub.Hub, error) {
	if err := debug.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if debugLog {
		if err := debug.Enable(); err != nil {
			return nil, fmt.Errorf("debug log: %w", err)
		}
	}
	return hub.New(cfg.HubOptions()...), nil
}
