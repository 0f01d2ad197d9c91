package event

import (
	"fmt"
	"strings"
)

// Kind discriminates the control variants a device can report.
type Kind uint8

const (
	// Named is a plain string control from a non-MIDI device,
	// e.g. "button_0", "axis_2", "hat_0_x".
	Named Kind = iota
	// Note is a MIDI note control.
	Note
	// CC is a MIDI control-change control.
	CC
)

// AnyChannel marks a MIDI control pattern that matches regardless of channel.
const AnyChannel int8 = -1

// Control identifies a physical control on a device. It is a comparable
// value type so it can key the dispatch engine's last-value cache.
type Control struct {
	Kind    Kind
	Name    string
	Number  uint8
	Channel int8
}

// NamedControl returns a Control for a plain string identifier.
func NamedControl(name string) Control {
	return Control{Kind: Named, Name: name}
}

// NoteControl returns a note control on the given 0-based MIDI channel.
func NoteControl(number uint8, channel int8) Control {
	return Control{Kind: Note, Number: number, Channel: channel}
}

// CCControl returns a control-change control on the given 0-based MIDI channel.
func CCControl(number uint8, channel int8) Control {
	return Control{Kind: CC, Number: number, Channel: channel}
}

// Matches reports whether an observed control satisfies this pattern.
// Named patterns require exact string equality. MIDI patterns require equal
// kind and number; if the pattern carries a channel the observed control must
// carry the same one, otherwise any channel matches.
func (c Control) Matches(observed Control) bool {
	if c.Kind != observed.Kind {
		return false
	}
	if c.Kind == Named {
		return c.Name == observed.Name
	}
	if c.Number != observed.Number {
		return false
	}
	if c.Channel == AnyChannel {
		return true
	}
	return observed.Channel != AnyChannel && c.Channel == observed.Channel
}

// Buttonish reports whether the control is digital and should be
// edge-detected: MIDI notes, joystick buttons, and hat axes.
func (c Control) Buttonish() bool {
	switch c.Kind {
	case Note:
		return true
	case Named:
		return strings.HasPrefix(c.Name, "button_") || strings.HasPrefix(c.Name, "hat_")
	}
	return false
}

// Continuous reports whether the control is a value-bearing source that
// fires on every change: joystick axes and MIDI CC.
func (c Control) Continuous() bool {
	switch c.Kind {
	case CC:
		return true
	case Named:
		return strings.HasPrefix(c.Name, "axis_")
	}
	return false
}

// IsAxis reports whether the control is an axis-named string control.
func (c Control) IsAxis() bool {
	return c.Kind == Named && strings.HasPrefix(c.Name, "axis_")
}

func (c Control) String() string {
	switch c.Kind {
	case Note:
		if c.Channel == AnyChannel {
			return fmt.Sprintf("note/%d", c.Number)
		}
		return fmt.Sprintf("note/%d/ch%d", c.Number, c.Channel)
	case CC:
		if c.Channel == AnyChannel {
			return fmt.Sprintf("cc/%d", c.Number)
		}
		return fmt.Sprintf("cc/%d/ch%d", c.Number, c.Channel)
	default:
		return c.Name
	}
}

// DeviceEvent is the normalized unit of input: one per atomic physical
// transition, produced by a device adapter and never mutated afterwards.
type DeviceEvent struct {
	Device  string
	Control Control
	Value   float64
}
