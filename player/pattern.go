package player

import "go-midiseq/seq"

// Source generates events for a tick window. Fill must emit every event
// whose tick falls in [from, to), in any order; events at later ticks (a
// note-off after the window) may be emitted too.
type Source interface {
	Fill(from, to seq.Tick, emit func(tick seq.Tick, ev *seq.Event))
}

// Step is one note of a pattern.
type Step struct {
	Tick     seq.Tick // offset from the start of the pattern
	Channel  uint8
	Note     uint8
	Velocity uint8
	Length   seq.Tick
}

// Pattern loops a set of steps every Length ticks.
type Pattern struct {
	Length seq.Tick
	Steps  []Step
	Mute   bool
}

func (p *Pattern) Fill(from, to seq.Tick, emit func(tick seq.Tick, ev *seq.Event)) {
	if p.Mute || p.Length == 0 || from >= to {
		return
	}
	for start := from - from%p.Length; start < to; start += p.Length {
		for _, s := range p.Steps {
			if s.Tick >= p.Length {
				continue
			}
			at := start + s.Tick
			if at < from || at >= to {
				continue
			}
			on := seq.NewEvent()
			on.SetNoteOn(s.Channel, s.Note, s.Velocity)
			emit(at, on)

			off := seq.NewEvent()
			off.SetNoteOff(s.Channel, s.Note, 0)
			emit(at+max(s.Length, 1), off)
		}
	}
}
