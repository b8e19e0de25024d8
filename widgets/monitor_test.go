package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderBeatBar(t *testing.T) {
	on, off := lipgloss.Color("#ffffff"), lipgloss.Color("#000000")
	tests := []struct {
		tick uint32
		want string
	}{
		{0, "1.1"},
		{95, "1.1"},
		{96 * 3, "1.4"},
		{96 * 4, "2.1"},
		{96*9 + 10, "3.2"},
	}
	for _, tt := range tests {
		got := RenderBeatBar(tt.tick, 96, 4, '■', '□', on, off)
		if !strings.HasSuffix(got, " "+tt.want) {
			t.Errorf("tick %d: expected position %s, got %q", tt.tick, tt.want, got)
		}
	}
	if got := RenderBeatBar(10, 0, 4, '■', '□', on, off); got != "" {
		t.Errorf("Expected empty bar for ppq 0, got %q", got)
	}
}

func TestRenderChannelRow(t *testing.T) {
	var active [16]bool
	active[0] = true
	got := RenderChannelRow(active, '●', lipgloss.Color("#ff0000"), lipgloss.Color("#333333"))
	if n := strings.Count(got, "●"); n != 16 {
		t.Errorf("Expected 16 dots, got %d", n)
	}
}

func TestRenderKeyHelp(t *testing.T) {
	got := RenderKeyHelp([]KeySection{{
		Title: "Transport",
		Keys:  []KeyBinding{{Key: "p", Desc: "play/pause"}},
	}})
	if !strings.Contains(got, "Transport") || !strings.Contains(got, "play/pause") {
		t.Errorf("Unexpected help %q", got)
	}
}
