package deck

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func testMapping() map[string]string {
	return map[string]string{
		"Stage":      "stage",
		"Background": "background",
		"Wire Trace": "wires",
	}
}

func TestLayerTypesFromName(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"Stage Fills", []string{"fills"}},
		{"FILLS AND EFFECTS", []string{"fills", "effects"}},
		{"colors-layer", []string{"colors"}},
		{"Transforms 1", []string{"transforms"}},
		{"Opacity Master", []string{"opacity"}},
		{"Plain Video", nil},
	}
	for _, tt := range tests {
		if got := LayerTypesFromName(tt.name); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("LayerTypesFromName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestManagerDecks(t *testing.T) {
	m := NewManager(testMapping())
	if m.Deck("stage") == nil || m.Deck("wires") == nil {
		t.Fatal("decks from mapping missing")
	}
	if m.Deck("nope") != nil {
		t.Error("unknown deck should be nil")
	}
	names := []string{}
	for _, d := range m.Decks() {
		names = append(names, d.Name())
	}
	want := []string{"background", "stage", "wires"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Decks() order = %v, want %v", names, want)
	}
}

func TestDeckForGroupExactMatch(t *testing.T) {
	m := NewManager(testMapping())
	if d, ok := m.DeckForGroup("Wire Trace"); !ok || d != "wires" {
		t.Errorf("DeckForGroup(Wire Trace) = %q, %v", d, ok)
	}
	if _, ok := m.DeckForGroup("wire trace"); ok {
		t.Error("group matching must be exact, not case-insensitive")
	}
}

func TestUpsertGroupRename(t *testing.T) {
	m := NewManager(testMapping())
	m.UpsertGroup(1, "Old Name")
	m.UpsertGroup(1, "Stage")
	if got := m.LayersByType("Old Name", "fills"); got != nil {
		t.Error("old group name still resolvable after rename")
	}
	m.UpsertLayer(1, 3, "Stage Fills A", nil, 0)
	if got := m.LayersByType("Stage", "fills"); len(got) != 1 {
		t.Errorf("fills layers under renamed group = %d, want 1", len(got))
	}
}

func TestUpsertLayerPreservesClips(t *testing.T) {
	m := NewManager(testMapping())
	m.UpsertGroup(1, "Stage")
	m.UpsertLayer(1, 3, "Stage Fills A", []int{2, 4, 6}, 1)

	// Name-only update must keep the clip knowledge.
	m.UpsertLayer(1, 3, "Stage Fills A2", nil, 0)
	layers := m.LayersByType("Stage", "fills")
	if len(layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(layers))
	}
	if !reflect.DeepEqual(layers[0].Clips, []int{2, 4, 6}) || layers[0].StopClip != 1 {
		t.Errorf("clips lost on name update: %+v", layers[0])
	}

	// A real clip update replaces them.
	m.UpsertLayer(1, 3, "Stage Fills A2", []int{5}, 7)
	layers = m.LayersByType("Stage", "fills")
	if !reflect.DeepEqual(layers[0].Clips, []int{5}) || layers[0].StopClip != 7 {
		t.Errorf("clip update not applied: %+v", layers[0])
	}
}

func TestUpsertLayerCreatesPlaceholderGroup(t *testing.T) {
	m := NewManager(testMapping())
	m.UpsertLayer(9, 12, "Orphan Effects", nil, 0)
	layers := m.LayersByType("Group 9", "effects")
	if len(layers) != 1 || layers[0].Index != 12 {
		t.Errorf("placeholder group missing layer: %+v", layers)
	}
}

func TestGroupsForDeckOrdering(t *testing.T) {
	m := NewManager(map[string]string{"A": "stage", "B": "stage", "C": "other"})
	m.UpsertGroup(5, "B")
	m.UpsertGroup(2, "A")
	m.UpsertGroup(3, "C")
	groups := m.GroupsForDeck("stage")
	if len(groups) != 2 || groups[0].Index != 2 || groups[1].Index != 5 {
		t.Errorf("GroupsForDeck order wrong: %+v", groups)
	}
}

func TestConcurrentUpsertsAndReads(t *testing.T) {
	m := NewManager(map[string]string{"Stage": "stage"})
	m.UpsertGroup(1, "Stage")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			m.UpsertLayer(1, i%8, fmt.Sprintf("Stage Fills %d", i), []int{2, 3}, 1)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				for _, g := range m.GroupsForDeck("stage") {
					for _, l := range g.SortedLayers() {
						_ = l.HasType("fills")
						_ = len(l.Clips)
					}
				}
				_ = m.LayersByType("Stage", "fills")
			}
		}()
	}
	wg.Wait()

	layers := m.LayersByType("Stage", "fills")
	if len(layers) != 8 {
		t.Errorf("layers after concurrent upserts = %d, want 8", len(layers))
	}
}
