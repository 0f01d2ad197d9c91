package deck

import (
	"sync"
	"time"
)

// State holds the live flags for one logical performance deck. Fields are
// written by the action registry on the event-consumer goroutine and read by
// the reflector and web monitor, so access goes through the mutex.
type State struct {
	mu          sync.RWMutex
	name        string
	playing     bool
	effects     bool
	colors      bool
	transform   bool
	fill        float64
	opacity     float64
	lastChanged time.Time
}

// Snapshot is a read-only copy of a deck's state at one instant.
type Snapshot struct {
	Name        string    `json:"name"`
	Playing     bool      `json:"playing"`
	Effects     bool      `json:"effects"`
	Colors      bool      `json:"colors"`
	Transform   bool      `json:"transform"`
	Fill        float64   `json:"fill"`
	Opacity     float64   `json:"opacity"`
	LastChanged time.Time `json:"lastChanged"`
}

func newState(name string) *State {
	return &State{name: name, opacity: 1.0, lastChanged: time.Now()}
}

func (s *State) Name() string { return s.name }

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Name:        s.name,
		Playing:     s.playing,
		Effects:     s.effects,
		Colors:      s.colors,
		Transform:   s.transform,
		Fill:        s.fill,
		Opacity:     s.opacity,
		LastChanged: s.lastChanged,
	}
}

func (s *State) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

func (s *State) Effects() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effects
}

func (s *State) Colors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colors
}

func (s *State) Transform() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transform
}

func (s *State) Fill() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fill
}

func (s *State) Opacity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opacity
}

func (s *State) LastChanged() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChanged
}

func (s *State) SetPlaying(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing != v {
		s.playing = v
		s.lastChanged = time.Now()
	}
}

func (s *State) SetEffects(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.effects != v {
		s.effects = v
		s.lastChanged = time.Now()
	}
}

func (s *State) SetColors(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.colors != v {
		s.colors = v
		s.lastChanged = time.Now()
	}
}

func (s *State) SetTransform(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transform != v {
		s.transform = v
		s.lastChanged = time.Now()
	}
}

// ToggleEffects flips the effects flag and returns the new value.
func (s *State) ToggleEffects() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = !s.effects
	s.lastChanged = time.Now()
	return s.effects
}

// ToggleColors flips the colors flag and returns the new value.
func (s *State) ToggleColors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colors = !s.colors
	s.lastChanged = time.Now()
	return s.colors
}

// ToggleTransform flips the transform flag and returns the new value.
func (s *State) ToggleTransform() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transform = !s.transform
	s.lastChanged = time.Now()
	return s.transform
}

// SetFill stores a fill level clamped to [0,1].
func (s *State) SetFill(v float64) {
	v = clamp01(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if abs(s.fill-v) > 1e-6 {
		s.fill = v
		s.lastChanged = time.Now()
	}
}

// SetOpacity stores an opacity level clamped to [0,1].
func (s *State) SetOpacity(v float64) {
	v = clamp01(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if abs(s.opacity-v) > 1e-6 {
		s.opacity = v
		s.lastChanged = time.Now()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
