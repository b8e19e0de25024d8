package theme

import (
	"github.com/charmbracelet/lipgloss"

	"go-midiseq/seq"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	NoteOn   rune // ● key down
	NoteOff  rune // ○ key up
	Control  rune // ~ controller, program, bend
	Realtime rune // · clock and transport
	SysEx    rune // ▤ variable length
	Queue    rune // ▶ queue control
	Other    rune // ?

	BeatOn  rune // ■ elapsed part of the bar
	BeatOff rune // □
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Plasma()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			NoteOn:   '●',
			NoteOff:  '○',
			Control:  '~',
			Realtime: '·',
			SysEx:    '▤',
			Queue:    '▶',
			Other:    '?',

			BeatOn:  '■',
			BeatOff: '□',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

// Glyph picks the symbol and color role for an event type.
func (t *Theme) Glyph(typ seq.EventType) (rune, float64) {
	switch {
	case typ == seq.EventNoteOff:
		return t.Symbols.NoteOff, RoleActive
	case typ.IsNote():
		return t.Symbols.NoteOn, RoleSuccess
	case typ.IsControl():
		return t.Symbols.Control, RoleAccent
	case typ == seq.EventClock:
		return t.Symbols.Realtime, RoleMuted
	case typ == seq.EventSysEx:
		return t.Symbols.SysEx, RoleWarning
	case typ.IsQueueControl():
		return t.Symbols.Queue, RoleFG
	}
	return t.Symbols.Other, RoleMuted
}
