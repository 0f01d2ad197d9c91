package reflector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/deck"
)

// LampOutput is the indicator sink the reflector paints onto. Implementations
// address lamps by MIDI channel, note and velocity.
type LampOutput interface {
	NoteOn(channel, note, velocity uint8) error
}

// APC40 mkII velocities. Blinking is done here by toggling on/off rather than
// relying on the device's blink velocities.
const (
	velOff    uint8 = 0
	velGreen  uint8 = 1
	velRed    uint8 = 3
	velYellow uint8 = 5
)

const (
	playIndicatorNote uint8 = 57
	stopIndicatorNote uint8 = 52
)

// segmentNotes is the green fill stack, top step first.
var segmentNotes = []uint8{56, 55, 54, 53}

// Options tunes the reflection loop.
type Options struct {
	Hz                 float64
	BlinkHz            float64
	PhaseOffsetSeconds float64
	Duty               float64
	Segments           int
}

func DefaultOptions() Options {
	return Options{
		Hz:                 30.0,
		BlinkHz:            2.0,
		PhaseOffsetSeconds: -0.06,
		Duty:               0.5,
		Segments:           4,
	}
}

// Reflector periodically repaints deck state onto controller lamps. Writes
// are debounced per deck through a rendered-state signature so an unchanged
// deck produces no traffic.
type Reflector struct {
	log           zerolog.Logger
	decks         *deck.Manager
	lamps         LampOutput
	deckToChannel map[string]uint8
	channelToDeck map[uint8]string
	opts          Options

	// elapsed returns monotonic seconds since construction; swapped in tests.
	elapsed func() float64

	mu            sync.Mutex
	lastSig       map[string]string
	warnedNoLamps bool
}

// New builds a Reflector. lamps may be nil; the reflector then logs once and
// no-ops. deckToChannel maps deck names to wire channels.
func New(decks *deck.Manager, lamps LampOutput, deckToChannel map[string]uint8, opts Options) *Reflector {
	if opts.Hz < 1 {
		opts.Hz = 1
	}
	if opts.BlinkHz < 0.1 {
		opts.BlinkHz = 0.1
	}
	if opts.Duty <= 0 || opts.Duty > 1 {
		opts.Duty = 0.5
	}
	if opts.Segments <= 0 {
		opts.Segments = len(segmentNotes)
	}
	if opts.Segments > len(segmentNotes) {
		opts.Segments = len(segmentNotes)
	}
	c2d := make(map[uint8]string, len(deckToChannel))
	for name, ch := range deckToChannel {
		c2d[ch] = name
	}
	start := time.Now()
	return &Reflector{
		log:           log.With().Str("module", "Reflector").Logger(),
		decks:         decks,
		lamps:         lamps,
		deckToChannel: deckToChannel,
		channelToDeck: c2d,
		opts:          opts,
		elapsed:       func() float64 { return time.Since(start).Seconds() },
		lastSig:       make(map[string]string),
	}
}

// Run drives the reflection loop until the context is done.
func (r *Reflector) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / r.opts.Hz)
	r.log.Info().
		Float64("hz", r.opts.Hz).
		Float64("blinkHz", r.opts.BlinkHz).
		Float64("phaseOffset", r.opts.PhaseOffsetSeconds).
		Msg("Reflector running")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick repaints every deck whose rendered state changed since the last tick.
func (r *Reflector) Tick() {
	for _, d := range r.decks.Decks() {
		r.reflect(d, false)
	}
}

// RefreshDeck forces a repaint of one deck, bypassing the debounce. Used
// after a button release overwrites a lamp the performer is looking at.
func (r *Reflector) RefreshDeck(name string) {
	if name == "" {
		return
	}
	d := r.decks.Deck(name)
	if d == nil {
		return
	}
	r.mu.Lock()
	delete(r.lastSig, name)
	r.mu.Unlock()
	r.reflect(d, true)
}

// RefreshChannel forces a repaint of the deck mapped to a wire channel.
func (r *Reflector) RefreshChannel(ch uint8) {
	if name, ok := r.channelToDeck[ch]; ok {
		r.RefreshDeck(name)
	}
}

// blinkOn is a square wave with a per-channel phase offset so multiple decks
// ripple instead of flashing together.
func (r *Reflector) blinkOn(ch uint8) bool {
	period := 1.0 / r.opts.BlinkHz
	t := math.Mod(r.elapsed()+float64(ch)*r.opts.PhaseOffsetSeconds, period)
	if t < 0 {
		t += period
	}
	return t < period*r.opts.Duty
}

func (r *Reflector) reflect(d *deck.State, force bool) {
	if r.lamps == nil {
		r.mu.Lock()
		warned := r.warnedNoLamps
		r.warnedNoLamps = true
		r.mu.Unlock()
		if !warned {
			r.log.Debug().Msg("No lamp output available, skipping reflection")
		}
		return
	}

	name := d.Name()
	ch, ok := r.deckToChannel[name]
	if !ok {
		return
	}

	snap := d.Snapshot()

	fill := snap.Fill
	if fill < 0 {
		fill = 0
	}
	if fill > 1 {
		fill = 1
	}
	lit := int(math.Round(fill * float64(r.opts.Segments)))

	var playVel uint8
	if snap.Playing {
		playVel = velYellow
	} else {
		playVel = velRed
	}

	var stopVel uint8
	if snap.Playing && r.blinkOn(ch) {
		stopVel = velGreen
	} else {
		stopVel = velOff
	}

	sig := fmt.Sprintf("ch%d|play:%d|stop:%d|lit:%d", ch, playVel, stopVel, lit)
	r.mu.Lock()
	unchanged := !force && r.lastSig[name] == sig
	if !unchanged {
		r.lastSig[name] = sig
	}
	r.mu.Unlock()
	if unchanged {
		return
	}

	if err := r.lamps.NoteOn(ch, playIndicatorNote, playVel); err != nil {
		r.log.Error().Err(err).Str("deck", name).Uint8("note", playIndicatorNote).Msg("Failed to set play indicator")
	}
	if err := r.lamps.NoteOn(ch, stopIndicatorNote, stopVel); err != nil {
		r.log.Error().Err(err).Str("deck", name).Uint8("note", stopIndicatorNote).Msg("Failed to set stop indicator")
	}
	for i := 0; i < r.opts.Segments; i++ {
		vel := velOff
		if i < lit {
			vel = velGreen
		}
		if err := r.lamps.NoteOn(ch, segmentNotes[i], vel); err != nil {
			r.log.Error().Err(err).Str("deck", name).Uint8("note", segmentNotes[i]).Msg("Failed to set fill segment")
		}
	}
}
