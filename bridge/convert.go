package bridge

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiseq/seq"
)

const (
	sysExStart = 0xF0
	sysExEnd   = 0xF7
)

// ToMessage converts a sequencer event to a MIDI message. Events with no
// wire form (queue control addressed to the timer, notes with a duration,
// which the hub splits into note-on and note-off before delivery) report
// false.
func ToMessage(ev *seq.Event) (gomidi.Message, bool) {
	switch ev.Type() {
	case seq.EventNoteOn:
		n, _ := ev.Note()
		return gomidi.NoteOn(n.Channel, n.Note, n.Velocity), true
	case seq.EventNoteOff:
		n, _ := ev.Note()
		return gomidi.NoteOffVelocity(n.Channel, n.Note, n.Velocity), true
	case seq.EventController:
		c, _ := ev.Control()
		return gomidi.ControlChange(c.Channel, uint8(c.Param), uint8(c.Value)), true
	case seq.EventPgmChange:
		c, _ := ev.Control()
		return gomidi.ProgramChange(c.Channel, uint8(c.Value)), true
	case seq.EventPitchBend:
		c, _ := ev.Control()
		return gomidi.Pitchbend(c.Channel, int16(c.Value)), true
	case seq.EventSysEx:
		return sysExMessage(ev.VariablePayload()), true
	case seq.EventClock:
		return gomidi.TimingClock(), true
	case seq.EventStart:
		return gomidi.Start(), true
	case seq.EventStop:
		return gomidi.Stop(), true
	case seq.EventContinue:
		return gomidi.Continue(), true
	}
	return nil, false
}

// sysExMessage accepts payloads with or without the F0/F7 framing.
func sysExMessage(b []byte) gomidi.Message {
	if len(b) > 0 && b[0] == sysExStart {
		return gomidi.Message(append([]byte(nil), b...))
	}
	return gomidi.SysEx(b)
}

// FromMessage converts a MIDI message to an unaddressed event. Sysex
// payloads keep their F0/F7 framing.
func FromMessage(msg gomidi.Message) (*seq.Event, bool) {
	var (
		ch, key, vel uint8
		cc, val      uint8
		rel          int16
		abs          uint16
		data         []byte
	)

	ev := seq.NewEvent()
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		ev.SetNoteOn(ch, key, vel)
	case msg.GetNoteOff(&ch, &key, &vel):
		ev.SetNoteOff(ch, key, vel)
	case msg.GetNoteEnd(&ch, &key):
		ev.SetNoteOff(ch, key, 0)
	case msg.GetControlChange(&ch, &cc, &val):
		ev.SetController(ch, uint32(cc), int32(val))
	case msg.GetProgramChange(&ch, &val):
		ev.SetProgramChange(ch, int32(val))
	case msg.GetPitchBend(&ch, &rel, &abs):
		ev.SetPitchBend(ch, int32(rel))
	case msg.GetSysEx(&data):
		framed := make([]byte, 0, len(data)+2)
		framed = append(framed, sysExStart)
		framed = append(framed, data...)
		framed = append(framed, sysExEnd)
		ev.SetSysEx(framed)
	case msg.Is(gomidi.TimingClockMsg):
		ev.SetClock()
	case msg.Is(gomidi.StartMsg):
		ev.SetRealtime(seq.EventStart)
	case msg.Is(gomidi.StopMsg):
		ev.SetRealtime(seq.EventStop)
	case msg.Is(gomidi.ContinueMsg):
		ev.SetRealtime(seq.EventContinue)
	default:
		return nil, false
	}
	return ev, true
}
