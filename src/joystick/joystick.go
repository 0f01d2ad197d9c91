package joystick

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/holoplot/go-evdev"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/event"
)

// Options tunes the joystick reader.
type Options struct {
	// Device is an evdev path ("/dev/input/event5") or a substring of the
	// device name. Empty picks the first device exposing absolute axes.
	Device string
	// Deadzone zeroes axis values below this magnitude.
	Deadzone float64
	// AxisStep quantizes axis values so tiny jitter does not flood the
	// dispatcher. 0 disables quantization.
	AxisStep float64
}

// Joystick reads evdev events from one controller and normalizes them:
// axes become "axis_N" in [-1,1], buttons "button_N" in {0,1}, and hat axes
// "hat_N_x"/"hat_N_y" in {-1,0,1}. Repeated values are suppressed.
type Joystick struct {
	log    zerolog.Logger
	device string
	opts   Options
	events chan<- event.DeviceEvent

	absinfos  map[evdev.EvCode]evdev.AbsInfo
	axisIndex map[evdev.EvCode]int

	lastAxes    map[int]float64
	lastButtons map[int]int32
	lastHats    map[string]int32
}

// New builds a reader pushing into the shared event channel under the logical
// device key ("joystick").
func New(device string, opts Options, events chan<- event.DeviceEvent) *Joystick {
	if opts.Deadzone <= 0 {
		opts.Deadzone = 0.05
	}
	return &Joystick{
		log:         log.With().Str("module", "Joystick").Logger(),
		device:      device,
		opts:        opts,
		events:      events,
		lastAxes:    make(map[int]float64),
		lastButtons: make(map[int]int32),
		lastHats:    make(map[string]int32),
	}
}

// findDevice resolves the configured path or name match, or the first device
// with absolute axes when nothing is configured.
func (j *Joystick) findDevice() (*evdev.InputDevice, error) {
	if strings.HasPrefix(j.opts.Device, "/dev/") {
		return evdev.Open(j.opts.Device)
	}
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, err
	}
	match := strings.ToLower(j.opts.Device)
	for _, p := range paths {
		if match != "" && !strings.Contains(strings.ToLower(p.Name), match) {
			continue
		}
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		if absinfos, err := dev.AbsInfos(); err == nil && len(absinfos) > 0 {
			return dev, nil
		}
		dev.Close()
	}
	return nil, fmt.Errorf("no joystick device found (match=%q)", j.opts.Device)
}

// indexAxes assigns stable small indices to the non-hat absolute axes, in
// EvCode order, so configs can name them axis_0, axis_1, ...
func (j *Joystick) indexAxes() {
	codes := make([]evdev.EvCode, 0, len(j.absinfos))
	for code := range j.absinfos {
		if isHatCode(code) {
			continue
		}
		codes = append(codes, code)
	}
	sort.Slice(codes, func(a, b int) bool { return codes[a] < codes[b] })
	j.axisIndex = make(map[evdev.EvCode]int, len(codes))
	for i, code := range codes {
		j.axisIndex[code] = i
	}
}

func isHatCode(code evdev.EvCode) bool {
	return code >= evdev.ABS_HAT0X && code <= evdev.ABS_HAT3Y
}

// Run opens the device and pumps events until the context is done. A missing
// device is logged and the reader exits without error.
func (j *Joystick) Run(ctx context.Context) error {
	dev, err := j.findDevice()
	if err != nil {
		j.log.Warn().Err(err).Msg("Joystick unavailable")
		return nil
	}
	defer dev.Close()

	name, _ := dev.Name()
	j.absinfos, err = dev.AbsInfos()
	if err != nil {
		j.log.Warn().Err(err).Str("device", name).Msg("Could not fetch axis ranges")
		j.absinfos = map[evdev.EvCode]evdev.AbsInfo{}
	}
	j.indexAxes()
	j.log.Info().Str("device", name).Int("axes", len(j.axisIndex)).Msg("Joystick connected")

	go func() {
		<-ctx.Done()
		dev.Close()
	}()

	for {
		ie, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			j.log.Warn().Err(err).Msg("Joystick read failed, stopping")
			return err
		}
		switch ie.Type {
		case evdev.EV_KEY:
			j.handleButton(ctx, ie)
		case evdev.EV_ABS:
			if isHatCode(ie.Code) {
				j.handleHat(ctx, ie)
			} else {
				j.handleAxis(ctx, ie)
			}
		}
	}
}

func (j *Joystick) push(ctx context.Context, name string, value float64) {
	select {
	case j.events <- event.DeviceEvent{Device: j.device, Control: event.NamedControl(name), Value: value}:
	case <-ctx.Done():
	}
}

func (j *Joystick) handleButton(ctx context.Context, ie *evdev.InputEvent) {
	// Key repeats are not transitions.
	if ie.Value != 0 && ie.Value != 1 {
		return
	}
	index := int(ie.Code)
	if ie.Code >= evdev.BTN_JOYSTICK {
		index = int(ie.Code - evdev.BTN_JOYSTICK)
	}
	if j.lastButtons[index] == ie.Value {
		return
	}
	j.lastButtons[index] = ie.Value
	j.push(ctx, fmt.Sprintf("button_%d", index), float64(ie.Value))
}

func (j *Joystick) handleAxis(ctx context.Context, ie *evdev.InputEvent) {
	index, ok := j.axisIndex[ie.Code]
	if !ok {
		return
	}
	info := j.absinfos[ie.Code]
	span := float64(info.Maximum) - float64(info.Minimum)
	if span <= 0 {
		return
	}
	// Normalize to [-1,1].
	v := (float64(ie.Value)-float64(info.Minimum))/span*2 - 1
	if math.Abs(v) < j.opts.Deadzone {
		v = 0
	}
	if j.opts.AxisStep > 0 {
		v = math.Round(v/j.opts.AxisStep) * j.opts.AxisStep
	}
	if last, seen := j.lastAxes[index]; seen && last == v {
		return
	}
	j.lastAxes[index] = v
	j.push(ctx, fmt.Sprintf("axis_%d", index), v)
}

func (j *Joystick) handleHat(ctx context.Context, ie *evdev.InputEvent) {
	hat := int(ie.Code-evdev.ABS_HAT0X) / 2
	dir := "x"
	if (ie.Code-evdev.ABS_HAT0X)%2 == 1 {
		dir = "y"
	}
	name := fmt.Sprintf("hat_%d_%s", hat, dir)
	if j.lastHats[name] == ie.Value {
		return
	}
	j.lastHats[name] = ie.Value
	j.push(ctx, name, float64(ie.Value))
}
