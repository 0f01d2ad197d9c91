package configuration

import (
	"fmt"
	"strconv"

	"github.com/vdeck/deckrouter/src/event"
	"gopkg.in/yaml.v3"
)

// OSCConfig addresses the show-control application.
type OSCConfig struct {
	TxHost string `yaml:"txHost"`
	TxPort int    `yaml:"txPort"`
	RxHost string `yaml:"rxHost"`
	RxPort int    `yaml:"rxPort"`
}

// HTTPAPIConfig addresses the composition HTTP API used for topology.
type HTTPAPIConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	TimeoutSeconds float64 `yaml:"timeoutSeconds"`
	// RefreshSeconds <= 0 means fetch once at startup only.
	RefreshSeconds float64 `yaml:"refreshSeconds"`
}

// ReflectConfig tunes the LED state reflector.
type ReflectConfig struct {
	Hz      float64 `yaml:"hz"`
	BlinkHz float64 `yaml:"blinkHz"`
	// PhaseOffsetSeconds shifts each channel's blink phase so lamps ripple
	// instead of flashing in lockstep.
	PhaseOffsetSeconds float64 `yaml:"phaseOffsetSeconds"`
	Duty               float64 `yaml:"duty"`
	Segments           int     `yaml:"segments"`
}

// WebUIConfig configures the websocket deck-state monitor.
type WebUIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// JoystickConfig configures the evdev joystick reader.
type JoystickConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Device   string  `yaml:"device"`
	Deadzone float64 `yaml:"deadzone"`
	AxisStep float64 `yaml:"axisStep"`
}

// FillsConfig pins the clip columns used when a layer's clip list or stop
// column is unknown.
type FillsConfig struct {
	FallbackClipMin  int `yaml:"fallbackClipMin"`
	FallbackClipMax  int `yaml:"fallbackClipMax"`
	StopFallbackClip int `yaml:"stopFallbackClip"`
}

// DeviceConfig describes one physical input device. ChannelToDeck maps
// human-facing 1-based MIDI channels to deck names; keys are strings because
// YAML authors write them unquoted.
type DeviceConfig struct {
	Kind              string `yaml:"kind"`
	InMatch           string `yaml:"inMatch"`
	OutMatch          string `yaml:"outMatch"`
	ResetNotesOnStart bool   `yaml:"resetNotesOnStart"`
	// Reflect marks the device whose lamps mirror deck state.
	Reflect       bool              `yaml:"reflect"`
	ChannelToDeck map[string]string `yaml:"channelToDeck,omitempty"`
}

// TemplatesConfig holds the declarative rule templates expanded into concrete
// bindings at startup.
type TemplatesConfig struct {
	PerDeck []TemplateBlock `yaml:"perDeck,omitempty"`
	Global  []RuleSpec      `yaml:"global,omitempty"`
}

// TemplateBlock is a set of rule skeletons expanded once per (channel, deck)
// pair of the named device.
type TemplateBlock struct {
	Device string     `yaml:"device"`
	Rules  []RuleSpec `yaml:"rules"`
}

// RuleSpec is the YAML shape of one binding or binding template. Fields may
// carry "{channel}" and "{deck}" placeholders until expansion.
type RuleSpec struct {
	Device     string      `yaml:"device,omitempty"`
	Control    ControlSpec `yaml:"control"`
	Action     string      `yaml:"action"`
	Deck       string      `yaml:"deck,omitempty"`
	Edge       string      `yaml:"edge,omitempty"`
	FixedValue *float64    `yaml:"fixedValue,omitempty"`
	ValueScale []float64   `yaml:"valueScale,omitempty,flow"`
	PassValue  bool        `yaml:"passValue,omitempty"`
}

// ControlSpec is the polymorphic control pattern: either a plain name
// ("button_0", "axis_2") or a 2-3 element sequence [kind, number, channel?]
// where channel may be the "{channel}" placeholder.
type ControlSpec struct {
	Name    string
	Kind    string
	Number  int
	Channel string
}

func (c *ControlSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		c.Name = node.Value
		return nil
	case yaml.SequenceNode:
		if len(node.Content) < 2 || len(node.Content) > 3 {
			return fmt.Errorf("control sequence must have 2 or 3 elements, got %d", len(node.Content))
		}
		c.Kind = node.Content[0].Value
		n, err := strconv.Atoi(node.Content[1].Value)
		if err != nil {
			return fmt.Errorf("control number %q is not an integer", node.Content[1].Value)
		}
		c.Number = n
		if len(node.Content) == 3 {
			c.Channel = node.Content[2].Value
		}
		return nil
	default:
		return fmt.Errorf("control must be a string or a sequence")
	}
}

func (c ControlSpec) MarshalYAML() (interface{}, error) {
	if c.Name != "" {
		return c.Name, nil
	}
	seq := []interface{}{c.Kind, c.Number}
	if c.Channel != "" {
		if n, err := strconv.Atoi(c.Channel); err == nil {
			seq = append(seq, n)
		} else {
			seq = append(seq, c.Channel)
		}
	}
	return seq, nil
}

// resolve turns a fully substituted ControlSpec into an event.Control
// pattern. An unresolved placeholder or unknown kind is an error.
func (c ControlSpec) resolve() (event.Control, error) {
	if c.Name != "" {
		return event.NamedControl(c.Name), nil
	}
	if c.Number < 0 || c.Number > 127 {
		return event.Control{}, fmt.Errorf("control number %d out of range", c.Number)
	}
	channel := event.AnyChannel
	if c.Channel != "" {
		n, err := strconv.Atoi(c.Channel)
		if err != nil {
			return event.Control{}, fmt.Errorf("control channel %q is not an integer", c.Channel)
		}
		if n < 0 || n > 15 {
			return event.Control{}, fmt.Errorf("control channel %d out of range", n)
		}
		channel = int8(n)
	}
	switch c.Kind {
	case "note":
		return event.NoteControl(uint8(c.Number), channel), nil
	case "cc":
		return event.CCControl(uint8(c.Number), channel), nil
	default:
		return event.Control{}, fmt.Errorf("unknown control kind %q", c.Kind)
	}
}

// Config is the root configuration structure.
type Config struct {
	OSC         OSCConfig               `yaml:"osc"`
	HTTPAPI     HTTPAPIConfig           `yaml:"httpApi"`
	Reflect     ReflectConfig           `yaml:"reflect"`
	WebUI       WebUIConfig             `yaml:"webui"`
	Joystick    JoystickConfig          `yaml:"joystick"`
	Fills       FillsConfig             `yaml:"fills"`
	GroupToDeck map[string]string       `yaml:"groupToDeck"`
	Devices     map[string]DeviceConfig `yaml:"devices"`
	Templates   TemplatesConfig         `yaml:"templates"`
	Bindings    []RuleSpec              `yaml:"bindings,omitempty"`
}
