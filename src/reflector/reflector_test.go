package reflector

import (
	"errors"
	"testing"

	"github.com/vdeck/deckrouter/src/deck"
)

type write struct {
	channel  uint8
	note     uint8
	velocity uint8
}

type fakeLamps struct {
	writes []write
}

func (f *fakeLamps) NoteOn(channel, note, velocity uint8) error {
	f.writes = append(f.writes, write{channel: channel, note: note, velocity: velocity})
	return nil
}

func (f *fakeLamps) forChannel(ch uint8) []write {
	var out []write
	for _, w := range f.writes {
		if w.channel == ch {
			out = append(out, w)
		}
	}
	return out
}

func newTestReflector(lamps LampOutput) (*Reflector, *deck.Manager) {
	decks := deck.NewManager(map[string]string{
		"Stage":      "stage",
		"Background": "background",
	})
	r := New(decks, lamps, map[string]uint8{"stage": 1, "background": 2}, DefaultOptions())
	r.elapsed = func() float64 { return 0 } // blink phase pinned "on"
	return r, decks
}

func TestTickDebounce(t *testing.T) {
	lamps := &fakeLamps{}
	r, _ := newTestReflector(lamps)

	r.Tick()
	first := len(lamps.writes)
	if first == 0 {
		t.Fatal("first tick must paint")
	}
	r.Tick()
	if len(lamps.writes) != first {
		t.Errorf("second tick with unchanged state wrote %d more", len(lamps.writes)-first)
	}
}

func TestChangedDeckOnlyRepaints(t *testing.T) {
	lamps := &fakeLamps{}
	r, decks := newTestReflector(lamps)

	r.Tick()
	lamps.writes = nil

	decks.Deck("stage").SetFill(0.5)
	r.Tick()
	if len(lamps.forChannel(1)) == 0 {
		t.Error("changed deck not repainted")
	}
	if got := lamps.forChannel(2); len(got) != 0 {
		t.Errorf("unchanged deck repainted: %v", got)
	}
}

func TestSegmentCount(t *testing.T) {
	tests := []struct {
		fill      float64
		wantGreen int
	}{
		{0.0, 0},
		{0.25, 1},
		{0.5, 2},
		{0.75, 3},
		{1.0, 4},
	}
	for _, tt := range tests {
		lamps := &fakeLamps{}
		r, decks := newTestReflector(lamps)
		decks.Deck("stage").SetFill(tt.fill)
		r.Tick()

		green := 0
		for _, w := range lamps.forChannel(1) {
			for _, note := range segmentNotes {
				if w.note == note && w.velocity == velGreen {
					green++
				}
			}
		}
		if green != tt.wantGreen {
			t.Errorf("fill %v: %d green segments, want %d", tt.fill, green, tt.wantGreen)
		}
	}
}

func TestPlayIndicator(t *testing.T) {
	lamps := &fakeLamps{}
	r, decks := newTestReflector(lamps)

	r.Tick()
	got := indicatorVelocity(lamps.forChannel(1), playIndicatorNote)
	if got != velRed {
		t.Errorf("stopped deck play indicator = %d, want red %d", got, velRed)
	}

	decks.Deck("stage").SetPlaying(true)
	lamps.writes = nil
	r.Tick()
	got = indicatorVelocity(lamps.forChannel(1), playIndicatorNote)
	if got != velYellow {
		t.Errorf("playing deck play indicator = %d, want yellow %d", got, velYellow)
	}
}

func TestStopIndicatorBlinksWhilePlaying(t *testing.T) {
	lamps := &fakeLamps{}
	r, decks := newTestReflector(lamps)
	decks.Deck("stage").SetPlaying(true)

	// Channel 1 carries a -0.06s phase offset; at 0.1s the shifted phase is
	// 0.04s into the 0.5s period, inside the on half.
	r.elapsed = func() float64 { return 0.1 }
	r.Tick()
	if got := indicatorVelocity(lamps.forChannel(1), stopIndicatorNote); got != velGreen {
		t.Errorf("on phase: stop indicator = %d, want green", got)
	}

	// At 0.4s the shifted phase is 0.34s, inside the off half.
	lamps.writes = nil
	r.elapsed = func() float64 { return 0.4 }
	r.Tick()
	if got := indicatorVelocity(lamps.forChannel(1), stopIndicatorNote); got != velOff {
		t.Errorf("off phase: stop indicator = %d, want off", got)
	}
}

func TestStopIndicatorOffWhenStopped(t *testing.T) {
	lamps := &fakeLamps{}
	r, _ := newTestReflector(lamps)
	r.Tick()
	if got := indicatorVelocity(lamps.forChannel(1), stopIndicatorNote); got != velOff {
		t.Errorf("stopped deck stop indicator = %d, want off", got)
	}
}

func TestRefreshDeckBypassesDebounce(t *testing.T) {
	lamps := &fakeLamps{}
	r, _ := newTestReflector(lamps)
	r.Tick()
	lamps.writes = nil

	r.RefreshDeck("stage")
	if len(lamps.forChannel(1)) == 0 {
		t.Error("forced refresh did not repaint")
	}
}

func TestRefreshChannel(t *testing.T) {
	lamps := &fakeLamps{}
	r, _ := newTestReflector(lamps)
	r.Tick()
	lamps.writes = nil

	r.RefreshChannel(2)
	if len(lamps.forChannel(2)) == 0 {
		t.Error("channel refresh did not repaint mapped deck")
	}
	if len(lamps.forChannel(1)) != 0 {
		t.Error("channel refresh painted an unrelated deck")
	}
}

func TestNilLampsNoOp(t *testing.T) {
	r, _ := newTestReflector(nil)
	r.Tick() // must not panic
	r.Tick()
	r.RefreshDeck("stage")
}

func indicatorVelocity(writes []write, note uint8) uint8 {
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].note == note {
			return writes[i].velocity
		}
	}
	return 255
}

type flakyLamps struct {
	fakeLamps
	failNote uint8
}

func (f *flakyLamps) NoteOn(channel, note, velocity uint8) error {
	if note == f.failNote {
		return errFail
	}
	return f.fakeLamps.NoteOn(channel, note, velocity)
}

var errFail = errors.New("lamp write failed")

func TestIndicatorErrorDoesNotStopOthers(t *testing.T) {
	lamps := &flakyLamps{failNote: playIndicatorNote}
	r, decks := newTestReflector(lamps)
	decks.Deck("stage").SetFill(1.0)
	r.Tick()

	if got := lamps.forChannel(1); len(got) == 0 {
		t.Fatal("failing play indicator must not suppress the other writes")
	}
	for _, note := range segmentNotes {
		if indicatorVelocity(lamps.forChannel(1), note) == 255 {
			t.Errorf("segment note %d never written", note)
		}
	}
	if indicatorVelocity(lamps.forChannel(1), stopIndicatorNote) == 255 {
		t.Error("stop indicator never written")
	}
}
