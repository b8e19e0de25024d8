package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midiseq/player"
	"go-midiseq/seq"
	"go-midiseq/theme"
	"go-midiseq/widgets"
)

const (
	logSize     = 20
	refreshRate = time.Second / 30
	beatsPerBar = 4
)

// Model is the seqmon monitor: a live log of events arriving at the client,
// per-channel note activity and the state of one queue.
type Model struct {
	Client *seq.Client
	Player *player.Player // optional; enables play/pause and tempo keys
	Queue  *seq.Queue     // optional; shown in the header
	Theme  *theme.Theme

	log      []*seq.Event
	held     [16]int // sounding notes per channel
	received int
	status   seq.QueueStatus
	err      error
	quitting bool
}

type EventMsg struct{ Event *seq.Event }

type ErrMsg struct{ Err error }

type TickMsg time.Time

func NewModel(c *seq.Client, q *seq.Queue, p *player.Player, th *theme.Theme) Model {
	return Model{Client: c, Queue: q, Player: p, Theme: th}
}

// ListenForEvents waits for the next input event.
func ListenForEvents(c *seq.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := c.Receive()
		if err != nil {
			return ErrMsg{err}
		}
		return EventMsg{ev}
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForEvents(m.Client), refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.Player != nil {
				m.Player.Pause()
			}
			return m, tea.Quit

		case "p":
			if m.Player == nil {
				break
			}
			if m.Player.Playing() {
				m.err = m.Player.Pause()
			} else {
				m.err = m.Player.Play()
			}

		case "+", "=":
			m.err = m.nudgeTempo(5)

		case "-", "_":
			m.err = m.nudgeTempo(-5)

		case "c":
			m.log = nil
			m.held = [16]int{}
		}

	case EventMsg:
		if msg.Event == nil {
			return m, ListenForEvents(m.Client)
		}
		m.record(msg.Event)
		return m, ListenForEvents(m.Client)

	case ErrMsg:
		if !errors.Is(msg.Err, seq.ErrConnectionClosed) {
			m.err = msg.Err
		}
		m.quitting = true
		return m, tea.Quit

	case TickMsg:
		if m.Queue != nil {
			if st, err := m.Queue.Status(); err == nil {
				m.status = st
			}
		}
		return m, refresh()
	}

	return m, nil
}

func (m *Model) record(ev *seq.Event) {
	m.received++
	m.log = append(m.log, ev)
	if len(m.log) > logSize {
		m.log = m.log[len(m.log)-logSize:]
	}

	n, ok := ev.Note()
	if !ok || n.Channel > 15 {
		return
	}
	switch ev.Type() {
	case seq.EventNoteOn:
		m.held[n.Channel]++
	case seq.EventNoteOff:
		if m.held[n.Channel] > 0 {
			m.held[n.Channel]--
		}
	}
}

func (m Model) nudgeTempo(delta float64) error {
	if m.Player == nil {
		return nil
	}
	st, err := m.Player.Queue().Status()
	if err != nil {
		return err
	}
	return m.Player.SetTempo(bpmOf(st.Tempo) + delta)
}

func bpmOf(tempo int) float64 {
	if tempo <= 0 {
		return 0
	}
	return 60000000 / float64(tempo)
}

// Received returns how many events the monitor has seen.
func (m Model) Received() int { return m.received }

// Err returns the last error from a key action or the input stream.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	errStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	if m.status.Running {
		playState = "PLAY"
	}
	header := fmt.Sprintf("seqmon %d:%s  events:%d", m.Client.ID(), m.Client.Name(), m.received)
	if m.Queue != nil {
		header += fmt.Sprintf("  q%d %s %3.0fbpm tick:%d", m.Queue.ID(), playState, bpmOf(m.status.Tempo), m.status.Tick)
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(header))
	out.WriteString("\n\n")

	if m.Queue != nil {
		out.WriteString(widgets.RenderBeatBar(uint32(m.status.Tick), m.status.PPQ, beatsPerBar,
			m.Theme.Symbols.BeatOn, m.Theme.Symbols.BeatOff, m.Theme.Active(), m.Theme.Muted()))
		out.WriteString("\n")
	}

	var active [16]bool
	for ch, n := range m.held {
		active[ch] = n > 0
	}
	out.WriteString(widgets.RenderChannelRow(active, m.Theme.Symbols.NoteOn, m.Theme.Success(), m.Theme.Muted()))
	out.WriteString("\n\n")

	for _, ev := range m.log {
		r, role := m.Theme.Glyph(ev.Type())
		out.WriteString(widgets.RenderGlyph(r, m.Theme.Color(role)))
		out.WriteString(" ")
		out.WriteString(ev.String())
		out.WriteString("\n")
	}
	for i := len(m.log); i < logSize; i++ {
		out.WriteString("\n")
	}

	if m.err != nil {
		out.WriteString(errStyle.Render(m.err.Error()))
		out.WriteString("\n")
	}

	keys := "c:clear  q:quit"
	if m.Player != nil {
		keys = "p:play/pause  +/-:tempo  " + keys
	}
	out.WriteString(dimStyle.Render(keys))
	return out.String()
}
