package engine

// State represents the engine playback state machine.
//
// Valid transitions:
//   - Idle    → Loading (via Load)
//   - Loading → Paused  (Load success) or Idle (Load failure)
//   - Paused  → Playing (via Play/Resume)
//   - Playing → Paused  (via Pause)
//   - Playing/Paused → Stopping → Idle (via Stop)
//
// Flush/resume cycles that happen inside a decoder during seeks or device
// changes are internal; the orchestrator only ever issues Load, Play,
// Pause, Resume, Seek and Stop.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Stopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loading:
		return "Loading"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a source is loaded (anything but Idle).
func (s State) IsActive() bool {
	return s != Idle
}
