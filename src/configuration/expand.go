package configuration

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/mapper"
)

// humanToWireChannel converts a human channel 1..16 to wire channel 0..15,
// clamping out-of-range input.
func humanToWireChannel(human int) int {
	ch := human - 1
	if ch < 0 {
		ch = 0
	}
	if ch > 15 {
		ch = 15
	}
	return ch
}

// channelPair is one (wire channel, deck) assignment of a device.
type channelPair struct {
	channel int
	deck    string
}

// sortedChannelPairs returns a device's channel-to-deck pairs ordered by
// channel so expansion is deterministic regardless of map iteration.
func sortedChannelPairs(dev DeviceConfig) []channelPair {
	pairs := make([]channelPair, 0, len(dev.ChannelToDeck))
	for key, deckName := range dev.ChannelToDeck {
		human, err := strconv.Atoi(key)
		if err != nil {
			log.Warn().Str("channel", key).Msg("Ignoring non-numeric channel key")
			continue
		}
		pairs = append(pairs, channelPair{channel: humanToWireChannel(human), deck: deckName})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].channel < pairs[j].channel })
	return pairs
}

// substitute renders {channel} and {deck} placeholders in a rule copy.
func substitute(rule RuleSpec, channel int, deckName string) RuleSpec {
	ch := strconv.Itoa(channel)
	rule.Deck = strings.ReplaceAll(rule.Deck, "{deck}", deckName)
	rule.Deck = strings.ReplaceAll(rule.Deck, "{channel}", ch)
	rule.Control.Name = strings.ReplaceAll(rule.Control.Name, "{deck}", deckName)
	rule.Control.Channel = strings.ReplaceAll(rule.Control.Channel, "{channel}", ch)
	return rule
}

// toBinding resolves one concrete rule into a dispatch binding.
func toBinding(rule RuleSpec) (mapper.Binding, error) {
	control, err := rule.Control.resolve()
	if err != nil {
		return mapper.Binding{}, err
	}
	b := mapper.Binding{
		Device:     rule.Device,
		Control:    control,
		Action:     rule.Action,
		Deck:       rule.Deck,
		Edge:       mapper.Edge(rule.Edge),
		FixedValue: rule.FixedValue,
		PassValue:  rule.PassValue,
	}
	if len(rule.ValueScale) == 2 {
		scale := [2]float64{rule.ValueScale[0], rule.ValueScale[1]}
		b.ValueScale = &scale
	}
	return b, nil
}

// Expand flattens the config's templates into the concrete binding list the
// dispatcher consumes. Per-deck templates are stamped out once per (channel,
// deck) pair of their device, global rules follow, and the static bindings
// section comes last so user entries win positionally.
func Expand(cfg Config) []mapper.Binding {
	logger := log.With().Str("module", "Configuration").Logger()
	var out []mapper.Binding

	appendRule := func(rule RuleSpec, origin string) {
		if rule.Device == "" {
			logger.Warn().Str("origin", origin).Str("action", rule.Action).Msg("Rule has no device, skipping")
			return
		}
		if _, ok := cfg.Devices[rule.Device]; !ok {
			logger.Warn().Str("origin", origin).Str("device", rule.Device).Msg("Rule references unknown device, skipping")
			return
		}
		b, err := toBinding(rule)
		if err != nil {
			logger.Warn().Err(err).Str("origin", origin).Str("action", rule.Action).Msg("Malformed rule, skipping")
			return
		}
		out = append(out, b)
	}

	for _, block := range cfg.Templates.PerDeck {
		dev, ok := cfg.Devices[block.Device]
		if !ok {
			logger.Warn().Str("device", block.Device).Msg("Template block references unknown device, skipping")
			continue
		}
		pairs := sortedChannelPairs(dev)
		if len(pairs) == 0 {
			logger.Warn().Str("device", block.Device).Msg("Template block device has no channel mapping")
			continue
		}
		for _, pair := range pairs {
			for _, rule := range block.Rules {
				r := substitute(rule, pair.channel, pair.deck)
				if r.Device == "" {
					r.Device = block.Device
				}
				appendRule(r, "template")
			}
		}
	}

	for _, rule := range cfg.Templates.Global {
		appendRule(rule, "global")
	}

	for _, rule := range cfg.Bindings {
		appendRule(rule, "binding")
	}

	logger.Info().Int("bindings", len(out)).Msg("Expanded binding list")
	return out
}
