package resolume

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/deck"
)

// Fetcher pulls show topology from the composition HTTP API and populates the
// deck manager: group and layer names, eligible clip columns, and each
// layer's stop column.
type Fetcher struct {
	log     zerolog.Logger
	url     string
	client  *http.Client
	decks   *deck.Manager
	refresh time.Duration
}

// NewFetcher builds a Fetcher. refresh <= 0 means fetch once and stop.
func NewFetcher(host string, port int, timeout, refresh time.Duration, decks *deck.Manager) *Fetcher {
	return &Fetcher{
		log:     log.With().Str("module", "Resolume").Logger(),
		url:     fmt.Sprintf("http://%s:%d/api/v1/composition", host, port),
		client:  &http.Client{Timeout: timeout},
		decks:   decks,
		refresh: refresh,
	}
}

type nameJSON struct {
	Value string `json:"value"`
}

type clipJSON struct {
	Name nameJSON `json:"name"`
}

type layerJSON struct {
	ID    int64      `json:"id"`
	Name  nameJSON   `json:"name"`
	Clips []clipJSON `json:"clips"`
}

type layerRefJSON struct {
	ID int64 `json:"id"`
}

type groupJSON struct {
	Name   nameJSON       `json:"name"`
	Layers []layerRefJSON `json:"layers"`
}

type compositionJSON struct {
	LayerGroups []groupJSON `json:"layergroups"`
	Layers      []layerJSON `json:"layers"`
}

// FetchOnce pulls the composition and upserts it into the deck manager.
func (f *Fetcher) FetchOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch composition: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch composition: status %d", resp.StatusCode)
	}

	var comp compositionJSON
	if err := json.NewDecoder(resp.Body).Decode(&comp); err != nil {
		return fmt.Errorf("decode composition: %w", err)
	}

	f.populate(comp)
	return nil
}

// populate mirrors the composition into the deck manager. Layer indices are
// 1-based positions in the global layer list, matching the show software's
// own addressing; group indices are 1-based positions in the group list.
func (f *Fetcher) populate(comp compositionJSON) {
	layersByID := make(map[int64]layerJSON, len(comp.Layers))
	layerIndexByID := make(map[int64]int, len(comp.Layers))
	for i, layer := range comp.Layers {
		layersByID[layer.ID] = layer
		layerIndexByID[layer.ID] = i + 1
	}

	groups := 0
	layers := 0
	for gi, group := range comp.LayerGroups {
		groupIndex := gi + 1
		groupName := group.Name.Value
		if groupName == "" {
			groupName = fmt.Sprintf("Group %d", groupIndex)
		}
		f.decks.UpsertGroup(groupIndex, groupName)
		groups++

		for _, ref := range group.Layers {
			layer, ok := layersByID[ref.ID]
			if !ok {
				continue
			}
			layerIndex := layerIndexByID[ref.ID]
			layerName := layer.Name.Value
			if layerName == "" {
				layerName = fmt.Sprintf("Layer %d", layerIndex)
			}
			clips, stopClip := classifyClips(layer.Clips)
			f.decks.UpsertLayer(groupIndex, layerIndex, layerName, clips, stopClip)
			layers++
		}
	}
	f.log.Info().Int("groups", groups).Int("layers", layers).Msg("Composition topology updated")
}

// classifyClips splits a layer's clip row into eligible columns and the stop
// column. Columns are 1-based; empty slots are skipped; a clip whose name
// contains "stop" becomes the stop column.
func classifyClips(clips []clipJSON) ([]int, int) {
	var eligible []int
	stopClip := 0
	for i, clip := range clips {
		column := i + 1
		name := strings.TrimSpace(clip.Name.Value)
		if name == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), "stop") {
			if stopClip == 0 {
				stopClip = column
			}
			continue
		}
		eligible = append(eligible, column)
	}
	return eligible, stopClip
}

// Run fetches once at startup and then on the refresh interval, if any.
func (f *Fetcher) Run(ctx context.Context) {
	if err := f.FetchOnce(ctx); err != nil {
		f.log.Warn().Err(err).Msg("Initial composition fetch failed")
	}
	if f.refresh <= 0 {
		return
	}
	ticker := time.NewTicker(f.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.FetchOnce(ctx); err != nil {
				f.log.Warn().Err(err).Msg("Composition refresh failed")
			}
		}
	}
}
