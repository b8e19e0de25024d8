package bridge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"golang.org/x/text/cases"

	"go-midiseq/debug"
)

// ScanTimeout bounds a port listing. Some drivers (CoreMIDI in particular)
// hang instead of failing.
const ScanTimeout = 3 * time.Second

var ErrScanTimeout = errors.New("midi port scan timed out")

// PortList is a snapshot of the hardware ports the driver reports.
type PortList struct {
	In  []drivers.In
	Out []drivers.Out
}

// Names returns the input and output port names, sorted.
func (l PortList) Names() (in, out []string) {
	for _, p := range l.In {
		in = append(in, p.String())
	}
	for _, p := range l.Out {
		out = append(out, p.String())
	}
	sort.Strings(in)
	sort.Strings(out)
	return in, out
}

// Ports lists hardware ports, giving up after timeout.
func Ports(timeout time.Duration) (PortList, error) {
	ch := make(chan PortList, 1)
	go func() {
		ch <- PortList{In: gomidi.GetInPorts(), Out: gomidi.GetOutPorts()}
	}()

	select {
	case l := <-ch:
		return l, nil
	case <-time.After(timeout):
		// on macOS: sudo killall coreaudiod midiserver
		return PortList{}, ErrScanTimeout
	}
}

// Find returns the first input and output whose names contain pattern,
// ignoring case. Either result may be nil.
func (l PortList) Find(pattern string) (drivers.In, drivers.Out) {
	var in drivers.In
	var out drivers.Out
	for _, p := range l.In {
		if MatchName(p.String(), pattern) {
			in = p
			break
		}
	}
	for _, p := range l.Out {
		if MatchName(p.String(), pattern) {
			out = p
			break
		}
	}
	return in, out
}

// MatchName reports whether a port name contains pattern under Unicode case
// folding, so "KORG" matches "Korg nanoKEY2" and "straße" matches "STRASSE".
func MatchName(name, pattern string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(name), fold.String(pattern))
}

type PortEventType int

const (
	PortAdded PortEventType = iota
	PortRemoved
)

func (t PortEventType) String() string {
	if t == PortAdded {
		return "added"
	}
	return "removed"
}

// PortEvent reports a hardware port appearing or disappearing.
type PortEvent struct {
	Type PortEventType
	Name string
	In   bool // input port; false for an output
}

// diff compares two name sets. Events are sorted by name, removals first.
func diff(prev, cur map[string]bool, in bool) []PortEvent {
	var removed, added []string
	for name := range prev {
		if !cur[name] {
			removed = append(removed, name)
		}
	}
	for name := range cur {
		if !prev[name] {
			added = append(added, name)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	events := make([]PortEvent, 0, len(removed)+len(added))
	for _, name := range removed {
		events = append(events, PortEvent{Type: PortRemoved, Name: name, In: in})
	}
	for _, name := range added {
		events = append(events, PortEvent{Type: PortAdded, Name: name, In: in})
	}
	return events
}

func scanNames() (in, out []string, err error) {
	l, err := Ports(ScanTimeout)
	if err != nil {
		return nil, nil, err
	}
	in, out = l.Names()
	return in, out, nil
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Watcher polls the driver for hot-plugged ports.
type Watcher struct {
	events   chan PortEvent
	pollRate time.Duration
	scan     func() (in, out []string, err error)

	in, out map[string]bool
}

func NewWatcher(pollRate time.Duration) *Watcher {
	return &Watcher{
		events:   make(chan PortEvent, 16),
		pollRate: pollRate,
		scan:     scanNames,
		in:       map[string]bool{},
		out:      map[string]bool{},
	}
}

// Events returns the channel of port changes. It is closed when Run returns.
func (w *Watcher) Events() <-chan PortEvent {
	return w.events
}

// Run polls until ctx is done. Blocking; run it in a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	inNames, outNames, err := w.scan()
	if err != nil {
		// skip this round, the driver may recover
		debug.Warn("bridge", "port scan: %v", err)
		return
	}
	cur := nameSet(inNames)
	events := diff(w.in, cur, true)
	w.in = cur
	cur = nameSet(outNames)
	events = append(events, diff(w.out, cur, false)...)
	w.out = cur

	for _, ev := range events {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
