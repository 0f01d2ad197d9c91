package event

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		pattern  Control
		observed Control
		want     bool
	}{
		{"note exact channel", NoteControl(48, 1), NoteControl(48, 1), true},
		{"note wrong channel", NoteControl(48, 1), NoteControl(48, 2), false},
		{"note wrong number", NoteControl(48, 1), NoteControl(49, 1), false},
		{"note any channel", NoteControl(48, AnyChannel), NoteControl(48, 7), true},
		{"cc exact", CCControl(7, 4), CCControl(7, 4), true},
		{"cc vs note", CCControl(48, 1), NoteControl(48, 1), false},
		{"named exact", NamedControl("axis_2"), NamedControl("axis_2"), true},
		{"named mismatch", NamedControl("axis_2"), NamedControl("axis_3"), false},
		{"named vs note", NamedControl("axis_2"), NoteControl(2, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Matches(tt.observed); got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.pattern, tt.observed, got, tt.want)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		control    Control
		buttonish  bool
		continuous bool
	}{
		{NoteControl(48, 1), true, false},
		{CCControl(7, 1), false, true},
		{NamedControl("button_0"), true, false},
		{NamedControl("hat_0_x"), true, false},
		{NamedControl("axis_2"), false, true},
		{NamedControl("weird"), false, false},
	}
	for _, tt := range tests {
		if got := tt.control.Buttonish(); got != tt.buttonish {
			t.Errorf("%v.Buttonish() = %v, want %v", tt.control, got, tt.buttonish)
		}
		if got := tt.control.Continuous(); got != tt.continuous {
			t.Errorf("%v.Continuous() = %v, want %v", tt.control, got, tt.continuous)
		}
	}
}

func TestIsAxis(t *testing.T) {
	if !NamedControl("axis_0").IsAxis() {
		t.Error("axis_0 should be an axis")
	}
	if NamedControl("button_0").IsAxis() {
		t.Error("button_0 should not be an axis")
	}
	if CCControl(7, 0).IsAxis() {
		t.Error("cc should not be an axis")
	}
}
