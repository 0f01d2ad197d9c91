package actions

import (
	"fmt"
	"math"

	"github.com/vdeck/deckrouter/src/deck"
)

// canonicalStep returns the canonical fill step the value lands on, if any.
func canonicalStep(v float64) (float64, bool) {
	for _, step := range fillSteps {
		if math.Abs(v-step) < stepTolerance {
			return step, true
		}
	}
	return 0, false
}

// selectFillLayers applies the discrete fill selection for every group mapped
// to the deck: at 0 no fills layers are active, at 1 all are, and at
// intermediate steps round(ratio*count) layers (at least one) are chosen at
// random without replacement. Selected layers get an activate command on an
// eligible clip column, the rest get their stop column.
func (r *Registry) selectFillLayers(deckName string, ratio float64) {
	for _, g := range r.decks.GroupsForDeck(deckName) {
		layers := []*deck.LayerInfo{}
		for _, l := range g.SortedLayers() {
			if l.HasType("fills") {
				layers = append(layers, l)
			}
		}
		if len(layers) == 0 {
			r.log.Debug().Str("deck", deckName).Str("group", g.Name).Msg("No fills layers in group")
			continue
		}

		count := 0
		switch {
		case ratio <= 0:
			count = 0
		case ratio >= 1:
			count = len(layers)
		default:
			count = int(math.Round(ratio * float64(len(layers))))
			if count < 1 {
				count = 1
			}
			if count > len(layers) {
				count = len(layers)
			}
		}

		selected := make(map[int]bool, count)
		for _, i := range r.randPerm(len(layers))[:count] {
			selected[layers[i].Index] = true
		}

		r.log.Info().
			Str("deck", deckName).
			Str("group", g.Name).
			Float64("ratio", ratio).
			Int("selected", count).
			Int("total", len(layers)).
			Msg("Fill layer selection")

		for _, layer := range layers {
			if selected[layer.Index] {
				r.activateLayer(layer)
			} else {
				r.stopLayer(layer)
			}
		}
	}
}

// activateLayer connects a random eligible clip on the layer, falling back to
// a random column in the configured window when no clip list is known.
func (r *Registry) activateLayer(layer *deck.LayerInfo) {
	var column int
	if len(layer.Clips) > 0 {
		column = layer.Clips[r.randInt(len(layer.Clips))]
	} else {
		span := r.fills.FallbackClipMax - r.fills.FallbackClipMin
		if span < 1 {
			span = 1
		}
		column = r.fills.FallbackClipMin + r.randInt(span)
	}
	r.send(fmt.Sprintf("/composition/layers/%d/clips/%d/connect", layer.Index, column), 1)
}

// stopLayer connects the layer's stop column, or the configured fallback
// column with a warning when the stop column is unknown.
func (r *Registry) stopLayer(layer *deck.LayerInfo) {
	column := layer.StopClip
	if column <= 0 {
		column = r.fills.StopFallbackClip
		r.log.Warn().Str("layer", layer.Name).Int("column", column).Msg("Stop column unknown, using fallback")
	}
	r.send(fmt.Sprintf("/composition/layers/%d/clips/%d/connect", layer.Index, column), 1)
}
