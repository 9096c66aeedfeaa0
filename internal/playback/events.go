package playback

import (
	"time"

	"github.com/talaplayer/tala/internal/queue"
)

// StateChange is emitted when playback state changes.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when the current queue slot changes: explicit
// play, navigation, and auto-advance. Retries of the same slot do not emit.
type TrackChange struct {
	Previous      *queue.Track
	Current       *queue.Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when queue contents or ordering change.
type QueueChange struct {
	Tracks []queue.Track
	Index  int
}

// ModeChange is emitted when shuffle or loop mode changes.
type ModeChange struct {
	Shuffle bool
	Loop    queue.LoopMode
}

// PositionChange carries the continuous position stream for UI consumption.
type PositionChange struct {
	Position time.Duration
	Buffered time.Duration
	Duration time.Duration
}

// DeviceChange is emitted when the output device connectivity flag flips.
type DeviceChange struct {
	Connected bool
}

// ErrorEvent is emitted when a playback failure is handled. Failures never
// propagate to callers; this event is the only direct trace of them.
type ErrorEvent struct {
	Operation string // e.g. "resolve", "load", "decode"
	TrackID   string
	Err       error
}
