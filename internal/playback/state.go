package playback

import "github.com/talaplayer/tala/internal/engine"

// State represents the orchestrator-visible playback state.
type State int

const (
	StateStopped State = iota
	StateLoading
	StatePlaying
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if playback is active (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// engineStateToState maps the engine state machine onto the
// orchestrator-visible one. Stopping and Idle both read as Stopped;
// teardown is an engine-internal phase.
func engineStateToState(es engine.State) State {
	switch es {
	case engine.Loading:
		return StateLoading
	case engine.Playing:
		return StatePlaying
	case engine.Paused:
		return StatePaused
	default:
		return StateStopped
	}
}
