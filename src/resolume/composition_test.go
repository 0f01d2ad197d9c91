package resolume

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/vdeck/deckrouter/src/deck"
)

const compositionFixture = `{
  "layergroups": [
    {
      "name": {"value": "Stage"},
      "layers": [{"id": 11}, {"id": 12}]
    },
    {
      "name": {"value": "Background"},
      "layers": [{"id": 13}]
    }
  ],
  "layers": [
    {
      "id": 11,
      "name": {"value": "Stage Fills A"},
      "clips": [
        {"name": {"value": "stop"}},
        {"name": {"value": "clip a"}},
        {"name": {"value": ""}},
        {"name": {"value": "clip b"}}
      ]
    },
    {
      "id": 12,
      "name": {"value": "Stage Effects"},
      "clips": []
    },
    {
      "id": 13,
      "name": {"value": "Background Colors"},
      "clips": [{"name": {"value": "solid"}}]
    }
  ]
}`

func TestClassifyClips(t *testing.T) {
	clips := []clipJSON{
		{Name: nameJSON{Value: "STOP all"}},
		{Name: nameJSON{Value: "clip a"}},
		{Name: nameJSON{Value: "  "}},
		{Name: nameJSON{Value: "clip b"}},
		{Name: nameJSON{Value: "stop 2"}},
	}
	eligible, stop := classifyClips(clips)
	if !reflect.DeepEqual(eligible, []int{2, 4}) {
		t.Errorf("eligible = %v, want [2 4]", eligible)
	}
	if stop != 1 {
		t.Errorf("stop = %d, want first stop column 1", stop)
	}
}

func TestFetchOncePopulatesManager(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/composition" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(compositionFixture))
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())

	decks := deck.NewManager(map[string]string{"Stage": "stage", "Background": "background"})
	f := NewFetcher(u.Hostname(), port, 2*time.Second, 0, decks)
	if err := f.FetchOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	fills := decks.LayersByType("Stage", "fills")
	if len(fills) != 1 {
		t.Fatalf("Stage fills layers = %d, want 1", len(fills))
	}
	// Layer 11 is the first global layer, so index 1; clip columns 2 and 4
	// are eligible, column 1 is the stop clip.
	if fills[0].Index != 1 {
		t.Errorf("layer index = %d, want 1", fills[0].Index)
	}
	if !reflect.DeepEqual(fills[0].Clips, []int{2, 4}) || fills[0].StopClip != 1 {
		t.Errorf("clips = %v stop = %d", fills[0].Clips, fills[0].StopClip)
	}

	effects := decks.LayersByType("Stage", "effects")
	if len(effects) != 1 || effects[0].Index != 2 {
		t.Errorf("Stage effects = %+v", effects)
	}

	colors := decks.LayersByType("Background", "colors")
	if len(colors) != 1 || colors[0].Index != 3 {
		t.Errorf("Background colors = %+v", colors)
	}
}

func TestFetchOnceErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())
	decks := deck.NewManager(map[string]string{"Stage": "stage"})
	f := NewFetcher(u.Hostname(), port, time.Second, 0, decks)
	if err := f.FetchOnce(context.Background()); err == nil {
		t.Error("non-200 status must error")
	}
}
