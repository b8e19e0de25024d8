package main

import (
	"context"
	"fmt"
	"time"

	"go-midiseq/bridge"
)

func listPorts() error {
	fmt.Printf("(waiting up to %s...)\n", bridge.ScanTimeout)
	l, err := bridge.Ports(bridge.ScanTimeout)
	if err != nil {
		fmt.Println("Fix on macOS: sudo killall coreaudiod midiserver")
		return err
	}

	in, out := l.Names()
	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range in {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range out {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func watchPorts(ctx context.Context) error {
	fmt.Println("Watching for port changes. Ctrl+C to exit.")

	w := bridge.NewWatcher(2 * time.Second)
	go w.Run(ctx)
	for ev := range w.Events() {
		dir := "output"
		if ev.In {
			dir = "input"
		}
		fmt.Printf("[%s] %s %s: %s\n", time.Now().Format("15:04:05"), dir, ev.Type, ev.Name)
	}
	return ctx.Err()
}
