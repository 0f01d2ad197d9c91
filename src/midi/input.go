package midi

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/event"
	"gitlab.com/gomidi/midi/v2"

	driver "gitlab.com/gomidi/midi/v2/drivers/portmididrv"
)

func listDevices() ([]string, []string, error) {
	drv, err := driver.New()
	if err != nil {
		return nil, nil, err
	}
	// make sure to close all open ports at the end
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, nil, err
	}
	outs, err := drv.Outs()
	if err != nil {
		return nil, nil, err
	}
	inNames := make([]string, 0)
	outNames := make([]string, 0)
	for _, port := range ins {
		inNames = append(inNames, port.String())
	}
	for _, port := range outs {
		outNames = append(outNames, port.String())
	}
	return inNames, outNames, nil
}

// List prints every MIDI port visible to the driver.
func List() {
	log := log.Logger.With().Str("module", "Midi").Logger()
	ins, outs, err := listDevices()
	if err != nil {
		log.Error().Err(err).Msg("Could not list MIDI devices")
		return
	}
	for _, port := range ins {
		log.Info().Msgf("Found midi in device:\t%s", port)
	}
	for _, port := range outs {
		log.Info().Msgf("Found midi out device:\t%s", port)
	}
}

// Input listens on one MIDI port and normalizes note and control-change
// messages into device events. A note-off and a note-on with velocity 0 both
// emit value 0.
type Input struct {
	log       zerolog.Logger
	device    string
	portMatch string
	events    chan<- event.DeviceEvent
}

// NewInput builds an input for a logical device key ("apc40") matched to a
// port by substring.
func NewInput(device, portMatch string, events chan<- event.DeviceEvent) *Input {
	return &Input{
		log:       log.With().Str("module", "Midi").Str("device", device).Logger(),
		device:    device,
		portMatch: portMatch,
		events:    events,
	}
}

// Run opens the port and pumps events until the context is done. A missing
// port is logged and the input exits without error so the rest of the router
// keeps running.
func (in *Input) Run(ctx context.Context) error {
	drv, err := driver.New()
	if err != nil {
		return err
	}
	defer drv.Close()

	port, err := midi.FindInPort(in.portMatch)
	if err != nil {
		in.log.Warn().Str("match", in.portMatch).Msg("No matching MIDI input found")
		return nil
	}
	if err := port.Open(); err != nil {
		return err
	}
	defer port.Close()

	push := func(control event.Control, value float64) {
		select {
		case in.events <- event.DeviceEvent{Device: in.device, Control: control, Value: value}:
		case <-ctx.Done():
		}
	}

	onMessage := func(message midi.Message, timestampMs int32) {
		switch message.Type() {
		case midi.NoteOnMsg:
			var channel, note, velocity uint8
			message.GetNoteOn(&channel, &note, &velocity)
			push(event.NoteControl(note, int8(channel)), float64(velocity))
		case midi.NoteOffMsg:
			var channel, note, velocity uint8
			message.GetNoteOff(&channel, &note, &velocity)
			push(event.NoteControl(note, int8(channel)), 0)
		case midi.ControlChangeMsg:
			var channel, controller, value uint8
			message.GetControlChange(&channel, &controller, &value)
			push(event.CCControl(controller, int8(channel)), float64(value))
		}
	}

	stop, err := midi.ListenTo(port, onMessage)
	if err != nil {
		return err
	}
	in.log.Info().Stringer("port", port).Msg("Listening on MIDI input")

	<-ctx.Done()
	stop()
	return nil
}
