package deckrouter

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/actions"
	"github.com/vdeck/deckrouter/src/configuration"
	"github.com/vdeck/deckrouter/src/deck"
	"github.com/vdeck/deckrouter/src/event"
	"github.com/vdeck/deckrouter/src/joystick"
	"github.com/vdeck/deckrouter/src/mapper"
	"github.com/vdeck/deckrouter/src/midi"
	"github.com/vdeck/deckrouter/src/osc"
	"github.com/vdeck/deckrouter/src/reflector"
	"github.com/vdeck/deckrouter/src/resolume"
	"github.com/vdeck/deckrouter/src/webui"
)

var (
	commit    string
	version   string
	buildTime string
)

func Run() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Parse command line
	opt := getoptions.New()
	opt.Self("", "Route MIDI and joystick input to show-control decks")
	opt.HelpSynopsisArg("", "")
	opt.HelpCommand("help", opt.Alias("h"), opt.Description("Show this help"))
	opt.Bool("list-midi", false, opt.Alias("m"), opt.Description("List MIDI ports"))
	opt.Bool("version", false, opt.Alias("v"), opt.Description("Show version"))
	opt.Bool("verbose", false, opt.Description("Enable debug logging"))
	opt.Bool("no-webui", false, opt.Description("Disable web interface"))
	webAddr := opt.StringOptional("web-addr", "", opt.Description("Web interface address:port"))
	configFile := opt.StringOptional("config", "", opt.Description("Configuration file path"))
	opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if opt.Called("list-midi") {
		midi.List()
		os.Exit(0)
	}
	if opt.Called("version") {
		fmt.Printf("Version %s, commit %s, built on %s\n", version, commit, buildTime)
		os.Exit(0)
	}
	if opt.Called("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Configuration
	config, path, err := configuration.Load(*configFile)
	if err != nil {
		log.Error().Msgf("Configuration error %+v", err)
		os.Exit(1)
	}
	log.Info().Msgf("Loaded configuration from %s", path)

	bindings := configuration.Expand(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deck model and show-control transport
	decks := deck.NewManager(config.GroupToDeck)
	oscBus := osc.NewBus(config.OSC.TxHost, config.OSC.TxPort, config.OSC.RxHost, config.OSC.RxPort, decks)
	go oscBus.Serve(ctx)

	// Topology from the HTTP API
	fetcher := resolume.NewFetcher(
		config.HTTPAPI.Host,
		config.HTTPAPI.Port,
		time.Duration(config.HTTPAPI.TimeoutSeconds*float64(time.Second)),
		time.Duration(config.HTTPAPI.RefreshSeconds*float64(time.Second)),
		decks,
	)
	go fetcher.Run(ctx)

	// Dispatch pipeline
	registry := actions.NewRegistry(decks, oscBus, actions.FillConfig{
		FallbackClipMin:  config.Fills.FallbackClipMin,
		FallbackClipMax:  config.Fills.FallbackClipMax,
		StopFallbackClip: config.Fills.StopFallbackClip,
	})
	dispatcher := mapper.New(registry, bindings)
	events := make(chan event.DeviceEvent, 256)

	// Input devices and the reflected lamp output
	var lampBus *midi.Bus
	reflectDevice := ""
	deckToChannel := map[string]uint8{}
	for key, dev := range config.Devices {
		switch dev.Kind {
		case "midi":
			input := midi.NewInput(key, dev.InMatch, events)
			go input.Run(ctx)
			if dev.Reflect {
				reflectDevice = key
				lampBus = midi.NewBus(key, dev.OutMatch)
				for humanKey, deckName := range dev.ChannelToDeck {
					human, err := strconv.Atoi(humanKey)
					if err != nil {
						continue
					}
					ch := human - 1
					if ch < 0 {
						ch = 0
					}
					if ch > 15 {
						ch = 15
					}
					deckToChannel[deckName] = uint8(ch)
				}
				if dev.ResetNotesOnStart {
					lampBus.AllNotesOff(nil)
				}
			}
		case "joystick":
			if config.Joystick.Enabled {
				js := joystick.New(key, joystick.Options{
					Device:   config.Joystick.Device,
					Deadzone: config.Joystick.Deadzone,
					AxisStep: config.Joystick.AxisStep,
				}, events)
				go js.Run(ctx)
			}
		default:
			log.Warn().Str("device", key).Str("kind", dev.Kind).Msg("Unknown device kind")
		}
	}

	// State reflection
	var lamps reflector.LampOutput
	if lampBus != nil {
		lamps = lampBus
	}
	refl := reflector.New(decks, lamps, deckToChannel, reflector.Options{
		Hz:                 config.Reflect.Hz,
		BlinkHz:            config.Reflect.BlinkHz,
		PhaseOffsetSeconds: config.Reflect.PhaseOffsetSeconds,
		Duty:               config.Reflect.Duty,
		Segments:           config.Reflect.Segments,
	})
	go refl.Run(ctx)

	// Web UI
	if config.WebUI.Enabled && !opt.Called("no-webui") {
		addr := config.WebUI.Addr
		if *webAddr != "" {
			addr = *webAddr
		}
		webServer := webui.NewWebUIServer(addr, decks)
		go func() {
			if err := webServer.Start(); err != nil {
				log.Error().Err(err).Msg("Failed to start web server")
			}
		}()
		log.Info().Msgf("Web interface available at http://%s", addr)
	}

	// Single event consumer: dispatch, then repaint lamps the release may
	// have clobbered on the reflected device.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				dispatcher.Handle(ev)
				if ev.Device == reflectDevice && ev.Control.Kind == event.Note && ev.Value == 0 && ev.Control.Channel >= 0 {
					refl.RefreshChannel(uint8(ev.Control.Channel))
				}
			}
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Msgf("Received signal %s, shutting down...", sig)
	cancel()
	if lampBus != nil {
		lampBus.Close()
	}
}
