package mapper

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/vdeck/deckrouter/src/event"
)

// Edge names a digital transition a binding fires on.
type Edge string

const (
	EdgePress   Edge = "press"
	EdgeRelease Edge = "release"
	EdgeBoth    Edge = "both"
)

// Binding is one concrete dispatch rule, immutable once expanded. The flat
// binding list is built at startup and owned exclusively by the Mapper.
type Binding struct {
	Device     string
	Control    event.Control
	Action     string
	Deck       string
	Edge       Edge
	FixedValue *float64
	ValueScale *[2]float64
	PassValue  bool
}

// ActionInvoker is the action registry surface the dispatch engine needs.
type ActionInvoker interface {
	Has(name string) bool
	Invoke(name, deck string, value *float64) error
}

type cacheKey struct {
	device  string
	control event.Control
}

// Mapper consumes normalized device events and fires every matching,
// edge-satisfying binding in list order. It owns the last-value cache used
// for edge detection; the cache is keyed per (device, control) and updated on
// every event whether or not a binding matched.
type Mapper struct {
	log        zerolog.Logger
	actions    ActionInvoker
	bindings   []Binding
	lastValues map[cacheKey]float64
	warned     map[string]bool
}

// New builds a Mapper over an expanded binding list. Bindings naming unknown
// actions are kept (they no-op at dispatch) but flagged here once.
func New(actions ActionInvoker, bindings []Binding) *Mapper {
	m := &Mapper{
		log:        log.With().Str("module", "Mapper").Logger(),
		actions:    actions,
		bindings:   bindings,
		lastValues: make(map[cacheKey]float64),
		warned:     make(map[string]bool),
	}
	for _, b := range bindings {
		if !actions.Has(b.Action) && !m.warned[b.Action] {
			m.warned[b.Action] = true
			m.log.Warn().Str("action", b.Action).Msg("Binding references unknown action")
		}
	}
	return m
}

// Handle dispatches one event. All matching bindings fire, in list order;
// a handler failure is logged and does not stop the remaining bindings.
func (m *Mapper) Handle(ev event.DeviceEvent) {
	key := cacheKey{device: ev.Device, control: ev.Control}
	last := m.lastValues[key]
	m.lastValues[key] = ev.Value

	matched := lo.Filter(m.bindings, func(b Binding, _ int) bool {
		return b.Device == ev.Device && b.Control.Matches(ev.Control)
	})
	if len(matched) == 0 {
		return
	}
	m.log.Debug().
		Str("device", ev.Device).
		Stringer("control", ev.Control).
		Float64("value", ev.Value).
		Int("bindings", len(matched)).
		Msg("Event matched")

	for _, b := range matched {
		if ev.Control.Buttonish() && !edgeSatisfied(b.Edge, last, ev.Value) {
			continue
		}

		var value *float64
		switch {
		case b.FixedValue != nil:
			v := *b.FixedValue
			value = &v
		case m.valueBearing(b, ev.Control):
			v := normalize(ev.Control, ev.Value, b.ValueScale)
			value = &v
		}

		if !m.actions.Has(b.Action) {
			// Already warned at construction; skip without side effects.
			continue
		}
		if err := m.actions.Invoke(b.Action, b.Deck, value); err != nil {
			m.log.Error().Err(err).
				Str("action", b.Action).
				Str("deck", b.Deck).
				Msg("Action failed")
		}
	}
}

// edgeSatisfied gates digital controls on the configured transition. A
// binding without an edge fires on both transitions; a non-transition
// (repeated value) never fires.
func edgeSatisfied(edge Edge, last, value float64) bool {
	rising := last == 0 && value != 0
	falling := last != 0 && value == 0
	switch edge {
	case EdgePress:
		return rising
	case EdgeRelease:
		return falling
	default:
		return rising || falling
	}
}

// valueBearing reports whether the binding should receive a value: continuous
// sources always carry one, as do actions whose name marks them as value
// setters, and bindings requesting explicit passthrough.
func (m *Mapper) valueBearing(b Binding, c event.Control) bool {
	return c.Continuous() || strings.HasPrefix(b.Action, "set_") || b.PassValue
}

// normalize maps a raw control value to [0,1]: joystick axes from [-1,1], CC
// from [0,127]. An optional [lo,hi] window clamps the normalized value and
// remaps it linearly over the window. The result is always clamped to [0,1].
func normalize(c event.Control, raw float64, scale *[2]float64) float64 {
	v := raw
	if c.IsAxis() {
		v = (v + 1.0) * 0.5
	}
	if c.Kind == event.CC {
		v = v / 127.0
	}
	if scale != nil {
		low, high := scale[0], scale[1]
		if v < low {
			v = low
		}
		if v > high {
			v = high
		}
		span := high - low
		if span == 0 {
			span = 1.0
		}
		v = (v - low) / span
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}
