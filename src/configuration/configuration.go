package configuration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func floatPtr(v float64) *float64 { return &v }

// GetDefaultConfig returns the stock APC40 mkII setup: six decks on channels
// 2..7, per-deck toggle and fill buttons, transport globals, and one example
// joystick binding.
func GetDefaultConfig() Config {
	return Config{
		OSC: OSCConfig{
			TxHost: "127.0.0.1",
			TxPort: 7000,
			RxHost: "0.0.0.0",
			RxPort: 7001,
		},
		HTTPAPI: HTTPAPIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			TimeoutSeconds: 2.0,
			RefreshSeconds: 5.0,
		},
		Reflect: ReflectConfig{
			Hz:                 30.0,
			BlinkHz:            2.0,
			PhaseOffsetSeconds: -0.06,
			Duty:               0.5,
			Segments:           4,
		},
		WebUI: WebUIConfig{
			Enabled: true,
			Addr:    ":8833",
		},
		Joystick: JoystickConfig{
			Enabled:  true,
			Device:   "",
			Deadzone: 0.05,
			AxisStep: 0.02,
		},
		Fills: FillsConfig{
			FallbackClipMin:  2,
			FallbackClipMax:  10,
			StopFallbackClip: 1,
		},
		GroupToDeck: map[string]string{
			"Stage":      "stage",
			"Background": "background",
			"Wire Trace": "wires",
			"Merkaba":    "merkaba",
			"Flower":     "flower",
			"Top":        "top",
		},
		Devices: map[string]DeviceConfig{
			"apc40": {
				Kind:              "midi",
				InMatch:           "APC40",
				OutMatch:          "APC40",
				ResetNotesOnStart: true,
				Reflect:           true,
				ChannelToDeck: map[string]string{
					"2": "stage",
					"3": "background",
					"4": "wires",
					"5": "merkaba",
					"6": "flower",
					"7": "top",
				},
			},
			"joystick": {
				Kind: "joystick",
			},
		},
		Templates: TemplatesConfig{
			PerDeck: []TemplateBlock{
				{
					Device: "apc40",
					Rules: []RuleSpec{
						{Control: ControlSpec{Kind: "note", Number: 48, Channel: "{channel}"}, Action: "toggle_effects", Deck: "{deck}", Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 49, Channel: "{channel}"}, Action: "toggle_colors", Deck: "{deck}", Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 50, Channel: "{channel}"}, Action: "toggle_transform", Deck: "{deck}", Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 57, Channel: "{channel}"}, Action: "set_fill", Deck: "{deck}", FixedValue: floatPtr(0.0), Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 56, Channel: "{channel}"}, Action: "set_fill", Deck: "{deck}", FixedValue: floatPtr(0.25), Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 55, Channel: "{channel}"}, Action: "set_fill", Deck: "{deck}", FixedValue: floatPtr(0.5), Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 54, Channel: "{channel}"}, Action: "set_fill", Deck: "{deck}", FixedValue: floatPtr(0.75), Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 53, Channel: "{channel}"}, Action: "set_fill", Deck: "{deck}", FixedValue: floatPtr(1.0), Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 52, Channel: "{channel}"}, Action: "stop_deck", Deck: "{deck}", Edge: "press"},
						{Control: ControlSpec{Kind: "note", Number: 51, Channel: "{channel}"}, Action: "next_clip", Deck: "{deck}", Edge: "press"},
						{Control: ControlSpec{Kind: "cc", Number: 7, Channel: "{channel}"}, Action: "set_opacity", Deck: "{deck}"},
					},
				},
			},
			Global: []RuleSpec{
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 81, Channel: "0"}, Action: "stop_all_decks", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 91, Channel: "0"}, Action: "start_autopilot", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 92, Channel: "0"}, Action: "stop_autopilot", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 93, Channel: "0"}, Action: "toggle_record", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 99, Channel: "0"}, Action: "tempo_tap", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 101, Channel: "0"}, Action: "nudge_minus", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 100, Channel: "0"}, Action: "nudge_plus", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 98, Channel: "0"}, Action: "bpm_resync", Edge: "press"},
				{Device: "apc40", Control: ControlSpec{Kind: "note", Number: 65, Channel: "0"}, Action: "toggle_metronome", Edge: "press"},
			},
		},
		Bindings: []RuleSpec{
			{Device: "joystick", Control: ControlSpec{Name: "axis_2"}, Action: "set_fill", Deck: "stage"},
		},
	}
}

// Load reads the configuration, creating a default one next to the other
// dotfiles when none exists yet. An explicit path skips the search and must
// exist. The loaded document is validated against the embedded schema before
// unmarshalling.
func Load(explicitPath string) (Config, string, error) {
	var configPath string
	var content []byte
	var config Config

	homeDir, _ := os.UserHomeDir()
	paths := [...]string{
		"./config.yaml",
		fmt.Sprintf("%s/.config/deckrouter/config.yaml", homeDir),
	}

	if explicitPath != "" {
		fileContent, err := os.ReadFile(explicitPath)
		if err != nil {
			return GetDefaultConfig(), explicitPath, fmt.Errorf("could not read config: %w", err)
		}
		configPath = explicitPath
		content = fileContent
	}

	for _, path := range paths {
		if content != nil {
			break
		}
		fileContent, err := os.ReadFile(path)
		if err == nil {
			configPath = path
			content = fileContent
		}
	}

	// If no config found, create a default one
	if content == nil {
		config = GetDefaultConfig()
		configPath = paths[1]

		configDir := fmt.Sprintf("%s/.config/deckrouter", homeDir)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return config, "", fmt.Errorf("could not create config directory: %w", err)
		}

		data, err := yaml.Marshal(config)
		if err != nil {
			return config, "", fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			return config, "", fmt.Errorf("failed to write default config: %w", err)
		}

		return config, configPath, nil
	}

	if err := Validate(content); err != nil {
		return GetDefaultConfig(), configPath, fmt.Errorf("config validation failed: %w", err)
	}

	if err := yaml.Unmarshal(content, &config); err != nil {
		return GetDefaultConfig(), configPath, fmt.Errorf("error parsing config: %w", err)
	}

	ensureDefaults(&config)
	return config, configPath, nil
}

// ensureDefaults fills in any missing parts of a loaded config.
func ensureDefaults(config *Config) {
	def := GetDefaultConfig()

	if config.OSC.TxHost == "" {
		config.OSC.TxHost = def.OSC.TxHost
	}
	if config.OSC.TxPort == 0 {
		config.OSC.TxPort = def.OSC.TxPort
	}
	if config.OSC.RxHost == "" {
		config.OSC.RxHost = def.OSC.RxHost
	}
	if config.OSC.RxPort == 0 {
		config.OSC.RxPort = def.OSC.RxPort
	}

	if config.HTTPAPI.Host == "" {
		config.HTTPAPI.Host = def.HTTPAPI.Host
	}
	if config.HTTPAPI.Port == 0 {
		config.HTTPAPI.Port = def.HTTPAPI.Port
	}
	if config.HTTPAPI.TimeoutSeconds <= 0 {
		config.HTTPAPI.TimeoutSeconds = def.HTTPAPI.TimeoutSeconds
	}

	if config.Reflect.Hz <= 0 {
		config.Reflect.Hz = def.Reflect.Hz
	}
	if config.Reflect.BlinkHz <= 0 {
		config.Reflect.BlinkHz = def.Reflect.BlinkHz
	}
	if config.Reflect.Duty <= 0 || config.Reflect.Duty > 1 {
		config.Reflect.Duty = def.Reflect.Duty
	}
	if config.Reflect.Segments <= 0 {
		config.Reflect.Segments = def.Reflect.Segments
	}

	if config.WebUI.Addr == "" {
		config.WebUI.Addr = def.WebUI.Addr
	}

	if config.Joystick.Deadzone <= 0 {
		config.Joystick.Deadzone = def.Joystick.Deadzone
	}
	if config.Joystick.AxisStep < 0 {
		config.Joystick.AxisStep = def.Joystick.AxisStep
	}

	if config.Fills.FallbackClipMin <= 0 {
		config.Fills.FallbackClipMin = def.Fills.FallbackClipMin
	}
	if config.Fills.FallbackClipMax <= config.Fills.FallbackClipMin {
		config.Fills.FallbackClipMax = config.Fills.FallbackClipMin + 1
	}
	if config.Fills.StopFallbackClip <= 0 {
		config.Fills.StopFallbackClip = def.Fills.StopFallbackClip
	}

	if config.GroupToDeck == nil {
		config.GroupToDeck = def.GroupToDeck
	}
	if config.Devices == nil {
		config.Devices = def.Devices
	}
}
