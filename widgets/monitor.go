package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderGlyph renders a single colored symbol
func RenderGlyph(r rune, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(string(r))
}

// RenderChannelRow renders one dot per MIDI channel, lit where active.
func RenderChannelRow(active [16]bool, dot rune, on, off lipgloss.Color) string {
	var out strings.Builder
	for ch, lit := range active {
		if ch > 0 {
			out.WriteString(" ")
		}
		if lit {
			out.WriteString(RenderGlyph(dot, on))
		} else {
			out.WriteString(RenderGlyph(dot, off))
		}
	}
	return out.String()
}

// RenderBeatBar shows the position inside a bar: one cell per beat, filled
// up to the current beat.
func RenderBeatBar(tick uint32, ppq, beats int, full, empty rune, on, off lipgloss.Color) string {
	if ppq <= 0 || beats <= 0 {
		return ""
	}
	beat := int(tick/uint32(ppq)) % beats
	var out strings.Builder
	for i := 0; i < beats; i++ {
		if i <= beat {
			out.WriteString(RenderGlyph(full, on))
		} else {
			out.WriteString(RenderGlyph(empty, off))
		}
	}
	bar := int(tick/uint32(ppq))/beats + 1
	fmt.Fprintf(&out, " %d.%d", bar, beat+1)
	return out.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
