package midi

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	driver "gitlab.com/gomidi/midi/v2/drivers/portmididrv"
)

// Bus is a MIDI OUT helper used for lamp painting. When no matching port is
// found it degrades to a logged no-op so the router runs headless. On APC
// class controllers, turning a lamp off is note-on with velocity 0.
type Bus struct {
	log    zerolog.Logger
	device string

	mu   sync.Mutex
	drv  io.Closer
	out  drivers.Out
	send func(midi.Message) error
}

// NewBus opens the first output port whose name contains portMatch.
func NewBus(device, portMatch string) *Bus {
	b := &Bus{
		log:    log.With().Str("module", "Midi").Str("device", device).Logger(),
		device: device,
	}

	drv, err := driver.New()
	if err != nil {
		b.log.Error().Err(err).Msg("Could not initialize MIDI driver")
		return b
	}

	out, err := midi.FindOutPort(portMatch)
	if err != nil {
		b.log.Warn().Str("match", portMatch).Msg("No matching MIDI output found")
		drv.Close()
		return b
	}
	if err := out.Open(); err != nil {
		b.log.Error().Err(err).Stringer("port", out).Msg("Could not open MIDI output")
		drv.Close()
		return b
	}

	send, err := midi.SendTo(out)
	if err != nil {
		b.log.Error().Err(err).Stringer("port", out).Msg("Could not attach sender to MIDI output")
		out.Close()
		drv.Close()
		return b
	}

	b.drv = drv
	b.out = out
	b.send = send
	b.log.Info().Stringer("port", out).Msg("Opened MIDI output")
	return b
}

// Connected reports whether an output port is open.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send != nil
}

func (b *Bus) sendMsg(msg midi.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.send == nil {
		b.log.Debug().Str("msg", msg.String()).Msg("Dropping message, no output port")
		return nil
	}
	if err := b.send(msg); err != nil {
		b.log.Error().Err(err).Str("msg", msg.String()).Msg("MIDI send failed")
		return err
	}
	return nil
}

// NoteOn sets a lamp. Velocity selects the color; 0 turns it off.
func (b *Bus) NoteOn(channel, note, velocity uint8) error {
	return b.sendMsg(midi.NoteOn(channel, note, velocity))
}

// NoteOff clears a lamp. Sends velocity-0 note-on first since several
// controllers ignore real note-off for lamps.
func (b *Bus) NoteOff(channel, note uint8) error {
	if err := b.sendMsg(midi.NoteOn(channel, note, 0)); err != nil {
		return err
	}
	return b.sendMsg(midi.NoteOff(channel, note))
}

// SendCC sends a control change with the value clamped to 0..127.
func (b *Bus) SendCC(channel, controller, value uint8) error {
	if value > 127 {
		value = 127
	}
	return b.sendMsg(midi.ControlChange(channel, controller, value))
}

// AllNotesOff clears every lamp on the given channels (all 16 when nil) by
// brute-forcing velocity-0 note-ons, plus the standard CC#123 per channel.
func (b *Bus) AllNotesOff(channels []uint8) {
	if !b.Connected() {
		b.log.Warn().Msg("AllNotesOff skipped, no output port")
		return
	}
	if channels == nil {
		channels = make([]uint8, 16)
		for i := range channels {
			channels[i] = uint8(i)
		}
	}
	count := 0
	for _, ch := range channels {
		b.sendMsg(midi.ControlChange(ch, 123, 0))
		for note := 0; note < 128; note++ {
			b.sendMsg(midi.NoteOn(ch, uint8(note), 0))
			count++
		}
	}
	b.log.Info().Int("notes", count).Int("channels", len(channels)).Msg("AllNotesOff sent")
}

// Close releases the output port and driver.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out != nil {
		b.out.Close()
		b.out = nil
	}
	if b.drv != nil {
		b.drv.Close()
		b.drv = nil
	}
	b.send = nil
}
