package engine

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "Idle"},
		{Loading, "Loading"},
		{Playing, "Playing"},
		{Paused, "Paused"},
		{Stopping, "Stopping"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateIsActive(t *testing.T) {
	if Idle.IsActive() {
		t.Error("Idle should not be active")
	}
	for _, s := range []State{Loading, Playing, Paused, Stopping} {
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
	}
}

func TestSourceIsZero(t *testing.T) {
	if !(Source{TrackID: "a"}).IsZero() {
		t.Error("source without local or remote should be zero")
	}
	if (Source{Local: "/x.mp3"}).IsZero() {
		t.Error("local source should not be zero")
	}
	if (Source{Remote: "https://cdn.test/x.mp3"}).IsZero() {
		t.Error("remote source should not be zero")
	}
}
