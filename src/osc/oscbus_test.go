package osc

import (
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/vdeck/deckrouter/src/deck"
)

func newTestBus() (*Bus, *deck.Manager) {
	decks := deck.NewManager(map[string]string{"Stage": "stage"})
	return NewBus("127.0.0.1", 7000, "0.0.0.0", 7001, decks), decks
}

func msg(address string, args ...interface{}) *osc.Message {
	m := osc.NewMessage(address)
	for _, a := range args {
		m.Append(a)
	}
	return m
}

func TestDispatchGroupName(t *testing.T) {
	b, decks := newTestBus()
	b.Dispatch(msg("/composition/groups/2/name", "Stage"))
	if _, ok := decks.DeckForGroup("Stage"); !ok {
		t.Fatal("mapping lookup should still work")
	}
	decks.UpsertLayer(2, 5, "Stage Fills", nil, 0)
	if layers := decks.LayersByType("Stage", "fills"); len(layers) != 1 {
		t.Errorf("group from OSC not usable: %+v", layers)
	}
}

func TestDispatchLayerName(t *testing.T) {
	b, decks := newTestBus()
	b.Dispatch(msg("/composition/groups/2/name", "Stage"))
	b.Dispatch(msg("/composition/groups/2/layers/7/name", "Stage Effects"))
	layers := decks.LayersByType("Stage", "effects")
	if len(layers) != 1 || layers[0].Index != 7 || layers[0].Name != "Stage Effects" {
		t.Errorf("layer upsert wrong: %+v", layers)
	}
}

func TestDispatchLayerNamePreservesClips(t *testing.T) {
	b, decks := newTestBus()
	b.Dispatch(msg("/composition/groups/2/name", "Stage"))
	decks.UpsertLayer(2, 7, "Stage Fills", []int{3, 5}, 1)

	// A later name-only update over OSC must not erase HTTP-discovered clips.
	b.Dispatch(msg("/composition/groups/2/layers/7/name", "Stage Fills v2"))
	layers := decks.LayersByType("Stage", "fills")
	if len(layers) != 1 || len(layers[0].Clips) != 2 || layers[0].StopClip != 1 {
		t.Errorf("clips lost on OSC rename: %+v", layers)
	}
}

func TestDispatchIgnoresUnrelatedAddresses(t *testing.T) {
	b, decks := newTestBus()
	b.Dispatch(msg("/composition/layers/1/clips/2/connect", int32(1)))
	b.Dispatch(msg("/composition/groups/x/name", "Bogus"))
	if layers := decks.LayersByType("Bogus", "fills"); layers != nil {
		t.Errorf("unrelated address created state: %+v", layers)
	}
}

func TestDispatchBundle(t *testing.T) {
	b, decks := newTestBus()
	bundle := osc.NewBundle(time.Now())
	bundle.Append(msg("/composition/groups/1/name", "Stage"))
	bundle.Append(msg("/composition/groups/1/layers/2/name", "Stage Colors"))
	b.Dispatch(bundle)
	if layers := decks.LayersByType("Stage", "colors"); len(layers) != 1 {
		t.Errorf("bundle messages not dispatched: %+v", layers)
	}
}

func TestDispatchMissingNameArgument(t *testing.T) {
	b, decks := newTestBus()
	b.Dispatch(msg("/composition/groups/3/name"))
	decks.UpsertLayer(3, 1, "Fills", nil, 0)
	if layers := decks.LayersByType("Group 3", "fills"); len(layers) != 1 {
		t.Errorf("fallback group name not applied: %+v", layers)
	}
}
