package deck

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LayerInfo describes one show layer as discovered from the show topology.
// Clip columns are 1-based. StopClip is 0 when the layer has no known stop
// column.
type LayerInfo struct {
	Index    int
	Name     string
	Types    []string
	Clips    []int
	StopClip int
}

// HasType reports whether the layer carries the given type tag.
func (l LayerInfo) HasType(t string) bool {
	for _, lt := range l.Types {
		if lt == t {
			return true
		}
	}
	return false
}

// GroupInfo describes one show group (named visual channel) and its layers,
// keyed by layer index.
type GroupInfo struct {
	Index  int
	Name   string
	Layers map[int]*LayerInfo
}

// SortedLayers returns the group's layers ordered by index.
func (g *GroupInfo) SortedLayers() []*LayerInfo {
	out := make([]*LayerInfo, 0, len(g.Layers))
	for _, l := range g.Layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// snapshot copies the group with its own layer map so callers can iterate it
// after the manager lock is released. Layer entries are replaced, never
// mutated, after publication, so sharing the pointers is safe.
func (g *GroupInfo) snapshot() *GroupInfo {
	layers := make(map[int]*LayerInfo, len(g.Layers))
	for i, l := range g.Layers {
		layers[i] = l
	}
	return &GroupInfo{Index: g.Index, Name: g.Name, Layers: layers}
}

// layerTypeKeywords is the fixed classification vocabulary matched
// case-insensitively against layer names. Multiple tags may apply.
var layerTypeKeywords = []string{"fills", "effects", "colors", "transforms", "opacity"}

// LayerTypesFromName classifies a layer by keyword.
func LayerTypesFromName(name string) []string {
	var types []string
	n := strings.ToLower(name)
	for _, kw := range layerTypeKeywords {
		if strings.Contains(n, kw) {
			types = append(types, kw)
		}
	}
	return types
}

// Manager is the aggregate root owning the static group-to-deck mapping, the
// per-deck states, and the live group/layer topology. Deck names are fixed at
// construction; topology is upserted wholesale by external fetchers.
type Manager struct {
	mu            sync.RWMutex
	groupToDeck   map[string]string
	decks         map[string]*State
	groupsByIndex map[int]*GroupInfo
	groupsByName  map[string]*GroupInfo
}

// NewManager builds a Manager from a group-name to deck-name mapping. Every
// deck named by the mapping gets a State; no decks are created afterwards.
func NewManager(groupToDeck map[string]string) *Manager {
	m := &Manager{
		groupToDeck:   make(map[string]string, len(groupToDeck)),
		decks:         make(map[string]*State),
		groupsByIndex: make(map[int]*GroupInfo),
		groupsByName:  make(map[string]*GroupInfo),
	}
	for group, deckName := range groupToDeck {
		m.groupToDeck[group] = deckName
		if _, ok := m.decks[deckName]; !ok {
			m.decks[deckName] = newState(deckName)
		}
	}
	return m
}

// Deck returns the state for a deck name, or nil when unknown.
func (m *Manager) Deck(name string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decks[name]
}

// Decks returns all deck states ordered by name.
func (m *Manager) Decks() []*State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*State, 0, len(m.decks))
	for _, d := range m.decks {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DeckForGroup resolves a group name to its deck name (exact match).
func (m *Manager) DeckForGroup(groupName string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.groupToDeck[groupName]
	return d, ok
}

// UpsertGroup inserts or renames a group by index.
func (m *Manager) UpsertGroup(index int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupsByIndex[index]
	if !ok {
		g = &GroupInfo{Index: index, Name: name, Layers: make(map[int]*LayerInfo)}
		m.groupsByIndex[index] = g
	} else {
		delete(m.groupsByName, g.Name)
		g.Name = name
	}
	m.groupsByName[name] = g
}

// UpsertLayer inserts or updates a layer under a group, reclassifying its
// types from the new name. The group is created with a placeholder name when
// it has not been seen yet. Passing nil clips or stopClip 0 keeps any value
// already discovered for the layer, so name-only updates do not erase clip
// knowledge.
func (m *Manager) UpsertLayer(groupIndex, layerIndex int, name string, clips []int, stopClip int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupsByIndex[groupIndex]
	if !ok {
		g = &GroupInfo{Index: groupIndex, Name: placeholderGroupName(groupIndex), Layers: make(map[int]*LayerInfo)}
		m.groupsByIndex[groupIndex] = g
		m.groupsByName[g.Name] = g
	}
	l := &LayerInfo{Index: layerIndex, Name: name, Types: LayerTypesFromName(name)}
	if prev, ok := g.Layers[layerIndex]; ok {
		l.Clips = prev.Clips
		l.StopClip = prev.StopClip
	}
	if clips != nil {
		l.Clips = append([]int(nil), clips...)
	}
	if stopClip != 0 {
		l.StopClip = stopClip
	}
	g.Layers[layerIndex] = l
}

// GroupsForDeck returns the groups mapped to a deck, ordered by group index.
// The returned groups are snapshots; the fetchers keep upserting the live
// topology while callers iterate.
func (m *Manager) GroupsForDeck(deckName string) []*GroupInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*GroupInfo
	for groupName, d := range m.groupToDeck {
		if d != deckName {
			continue
		}
		if g, ok := m.groupsByName[groupName]; ok {
			out = append(out, g.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// LayersByType returns a group's layers carrying the given type tag, ordered
// by layer index.
func (m *Manager) LayersByType(groupName, layerType string) []*LayerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groupsByName[groupName]
	if !ok {
		return nil
	}
	var out []*LayerInfo
	for _, l := range g.SortedLayers() {
		if l.HasType(layerType) {
			out = append(out, l)
		}
	}
	return out
}

func placeholderGroupName(index int) string {
	return fmt.Sprintf("Group %d", index)
}
