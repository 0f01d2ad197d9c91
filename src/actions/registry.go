package actions

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/deck"
)

// Transport sends an addressed value to the show-control application.
// Fire-and-forget: no acknowledgment is expected and failures are handled at
// the call site.
type Transport interface {
	Send(address string, value interface{}) error
}

// FillConfig tunes the clip columns used by the discrete fill selection when
// a layer's clip list or stop column is unknown.
type FillConfig struct {
	FallbackClipMin  int // inclusive
	FallbackClipMax  int // exclusive
	StopFallbackClip int
}

// DefaultFillConfig matches the long-standing column conventions of existing
// show files.
func DefaultFillConfig() FillConfig {
	return FillConfig{FallbackClipMin: 2, FallbackClipMax: 10, StopFallbackClip: 1}
}

// fillSteps are the canonical fill fractions that trigger discrete layer
// selection.
var fillSteps = [5]float64{0.0, 0.25, 0.5, 0.75, 1.0}

// stepTolerance is the floating tolerance for matching a canonical step.
const stepTolerance = 1e-4

// pulseDuration separates the "on" and "off" messages of momentary actions.
const pulseDuration = 100 * time.Millisecond

type handler struct {
	needsDeck  bool
	needsValue bool
	fn         func(deckName string, value float64) error
}

// Registry is the closed set of named actions the dispatch engine can invoke.
// Handlers mutate deck state through the Manager and emit the resulting state
// downstream; they never propagate transport failures to the caller.
type Registry struct {
	log      zerolog.Logger
	decks    *deck.Manager
	tx       Transport
	fills    FillConfig
	handlers map[string]handler

	// after schedules the trailing edge of momentary pulses; swapped out in
	// tests. Must not block the caller.
	after func(d time.Duration, f func())

	randInt  func(n int) int
	randPerm func(n int) []int
}

// NewRegistry builds the action table over the given deck manager and
// transport.
func NewRegistry(decks *deck.Manager, tx Transport, fills FillConfig) *Registry {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := &Registry{
		log:      log.With().Str("module", "Actions").Logger(),
		decks:    decks,
		tx:       tx,
		fills:    fills,
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		randInt:  rng.Intn,
		randPerm: rng.Perm,
	}
	r.handlers = map[string]handler{
		// Deck-scoped actions
		"toggle_effects":   {needsDeck: true, fn: r.toggleEffects},
		"toggle_colors":    {needsDeck: true, fn: r.toggleColors},
		"toggle_transform": {needsDeck: true, fn: r.toggleTransform},
		"set_fill":         {needsDeck: true, needsValue: true, fn: r.setFill},
		"set_opacity":      {needsDeck: true, needsValue: true, fn: r.setOpacity},
		"stop_deck":        {needsDeck: true, fn: r.stopDeck},
		"random_fills":     {needsDeck: true, fn: r.randomFills},
		"next_clip":        {needsDeck: true, fn: r.nextClip},

		// Global transport actions
		"stop_all_decks":   {fn: r.stopAllDecks},
		"start_autopilot":  {fn: r.startAutopilot},
		"stop_autopilot":   {fn: r.stopAutopilot},
		"toggle_record":    {fn: r.toggleRecord},
		"tempo_tap":        {fn: r.tempoTap},
		"nudge_minus":      {fn: r.nudgeMinus},
		"nudge_plus":       {fn: r.nudgePlus},
		"bpm_resync":       {fn: r.bpmResync},
		"toggle_metronome": {fn: r.toggleMetronome},
	}
	return r
}

// Has reports whether an action name is registered. The dispatch engine uses
// it to flag unknown names as configuration warnings at load time.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns all registered action names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Invoke runs the named action. A nil value means the binding supplied none.
// Lookup and value problems are warnings that no-op; only unknown action
// names surface as errors so the caller can log them once.
func (r *Registry) Invoke(name, deckName string, value *float64) error {
	h, ok := r.handlers[name]
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	if h.needsDeck && deckName == "" {
		r.log.Warn().Str("action", name).Msg("Deck-scoped action invoked without a deck")
		return nil
	}
	var v float64
	if value != nil {
		v = *value
	} else if h.needsValue {
		r.log.Warn().Str("action", name).Str("deck", deckName).Msg("Action requires a value but none was supplied")
		return nil
	}
	return h.fn(deckName, v)
}

// deckOrWarn resolves a deck by name, logging when it is unknown.
func (r *Registry) deckOrWarn(deckName, action string) *deck.State {
	d := r.decks.Deck(deckName)
	if d == nil {
		r.log.Warn().Str("deck", deckName).Str("action", action).Msg("Deck not found")
	}
	return d
}

// send pushes one addressed value downstream, logging failures with context.
// Emission failures never propagate.
func (r *Registry) send(address string, value interface{}) {
	if r.tx == nil {
		return
	}
	if err := r.tx.Send(address, value); err != nil {
		r.log.Error().Err(err).Str("address", address).Msg("Transport send failed")
	}
}

// pulse emits 1 on an address and schedules the matching 0 on a detached
// timer so the event-consumer goroutine never blocks.
func (r *Registry) pulse(address string) {
	r.send(address, 1)
	r.after(pulseDuration, func() {
		r.send(address, 0)
	})
}

// sendDeckState pushes the full current state of a deck downstream. Always
// the new state, never a delta.
func (r *Registry) sendDeckState(d *deck.State) {
	snap := d.Snapshot()
	base := "/deck/" + snap.Name
	r.send(base+"/playing", boolInt(snap.Playing))
	r.send(base+"/effects", boolInt(snap.Effects))
	r.send(base+"/colors", boolInt(snap.Colors))
	r.send(base+"/transform", boolInt(snap.Transform))
	r.send(base+"/fill", float32(snap.Fill))
	r.send(base+"/opacity", float32(snap.Opacity))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// === Deck-scoped handlers ===

func (r *Registry) toggleEffects(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "toggle_effects")
	if d == nil {
		return nil
	}
	on := d.ToggleEffects()
	r.log.Info().Str("deck", deckName).Bool("effects", on).Msg("Effects toggled")
	r.sendDeckState(d)
	return nil
}

func (r *Registry) toggleColors(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "toggle_colors")
	if d == nil {
		return nil
	}
	on := d.ToggleColors()
	r.log.Info().Str("deck", deckName).Bool("colors", on).Msg("Colors toggled")
	r.sendDeckState(d)
	return nil
}

func (r *Registry) toggleTransform(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "toggle_transform")
	if d == nil {
		return nil
	}
	on := d.ToggleTransform()
	r.log.Info().Str("deck", deckName).Bool("transform", on).Msg("Transform toggled")
	r.sendDeckState(d)
	return nil
}

// setFill stores a fill level and, when it lands on a canonical step, runs
// the discrete fill-layer selection. Values above 1.0 are raw controller
// units (velocity 0..127). Any fill set starts the deck playing.
func (r *Registry) setFill(deckName string, value float64) error {
	d := r.deckOrWarn(deckName, "set_fill")
	if d == nil {
		return nil
	}
	if value > 1.0 {
		value = value / 127.0
	}
	d.SetFill(value)
	d.SetPlaying(true)
	fill := d.Fill()
	r.log.Info().Str("deck", deckName).Float64("fill", fill).Msg("Fill set")
	r.sendDeckState(d)
	if step, ok := canonicalStep(fill); ok {
		r.selectFillLayers(deckName, step)
	}
	return nil
}

func (r *Registry) setOpacity(deckName string, value float64) error {
	d := r.deckOrWarn(deckName, "set_opacity")
	if d == nil {
		return nil
	}
	if value > 1.0 {
		value = value / 127.0
	}
	d.SetOpacity(value)
	r.log.Info().Str("deck", deckName).Float64("opacity", d.Opacity()).Msg("Opacity set")
	r.sendDeckState(d)
	return nil
}

// stopDeck halts the deck: playing off, fill zeroed, and a stop command for
// every layer of every group mapped to the deck, not just fills.
func (r *Registry) stopDeck(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "stop_deck")
	if d == nil {
		return nil
	}
	d.SetPlaying(false)
	d.SetFill(0.0)
	r.log.Info().Str("deck", deckName).Msg("Deck stopped")
	r.sendDeckState(d)
	for _, g := range r.decks.GroupsForDeck(deckName) {
		for _, layer := range g.SortedLayers() {
			r.stopLayer(layer)
		}
	}
	return nil
}

// randomFills picks one of the canonical fill steps at random and applies the
// same selection side effect as an explicit fill set.
func (r *Registry) randomFills(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "random_fills")
	if d == nil {
		return nil
	}
	step := fillSteps[r.randInt(len(fillSteps))]
	d.SetFill(step)
	d.SetPlaying(true)
	r.log.Info().Str("deck", deckName).Float64("fill", step).Msg("Random fill")
	r.sendDeckState(d)
	r.selectFillLayers(deckName, step)
	return nil
}

// nextClip advances every fills layer of the deck's groups and, when the
// matching deck flag is on, the effects/colors/transforms layers too.
func (r *Registry) nextClip(deckName string, _ float64) error {
	d := r.deckOrWarn(deckName, "next_clip")
	if d == nil {
		return nil
	}
	snap := d.Snapshot()
	gated := map[string]bool{
		"effects":    snap.Effects,
		"colors":     snap.Colors,
		"transforms": snap.Transform,
	}
	for _, g := range r.decks.GroupsForDeck(deckName) {
		for _, layer := range g.SortedLayers() {
			advance := layer.HasType("fills")
			if !advance {
				for t, on := range gated {
					if on && layer.HasType(t) {
						advance = true
						break
					}
				}
			}
			if advance {
				r.send(fmt.Sprintf("/composition/layers/%d/connectnextclip", layer.Index), 1)
			}
		}
	}
	r.log.Info().Str("deck", deckName).Msg("Next clip")
	return nil
}

// === Global handlers ===

func (r *Registry) stopAllDecks(_ string, _ float64) error {
	r.log.Info().Msg("Stopping all decks")
	for _, d := range r.decks.Decks() {
		d.SetPlaying(false)
		r.sendDeckState(d)
	}
	r.send("/composition/columns/1/connect", 1)
	return nil
}

func (r *Registry) startAutopilot(_ string, _ float64) error {
	r.log.Info().Msg("Autopilot start")
	r.send("/composition/autopilot/start", 1)
	return nil
}

func (r *Registry) stopAutopilot(_ string, _ float64) error {
	r.log.Info().Msg("Autopilot stop")
	r.send("/composition/autopilot/stop", 1)
	return nil
}

func (r *Registry) toggleRecord(_ string, _ float64) error {
	r.log.Info().Msg("Record toggle")
	r.pulse("/composition/recorder/record")
	return nil
}

func (r *Registry) tempoTap(_ string, _ float64) error {
	r.log.Info().Msg("Tempo tap")
	r.pulse("/composition/tempocontroller/tempotap")
	return nil
}

func (r *Registry) nudgeMinus(_ string, _ float64) error {
	r.log.Info().Msg("Tempo nudge-")
	r.pulse("/composition/tempocontroller/tempo/dec")
	return nil
}

func (r *Registry) nudgePlus(_ string, _ float64) error {
	r.log.Info().Msg("Tempo nudge+")
	r.pulse("/composition/tempocontroller/tempo/inc")
	return nil
}

func (r *Registry) bpmResync(_ string, _ float64) error {
	r.log.Info().Msg("BPM resync")
	r.pulse("/composition/tempocontroller/resync")
	return nil
}

func (r *Registry) toggleMetronome(_ string, _ float64) error {
	r.log.Info().Msg("Metronome toggle")
	r.pulse("/composition/tempocontroller/metronome")
	return nil
}
