// Package playback orchestrates one active playback session at a time
// against an asynchronous audio engine: it resolves tracks to playable
// sources, serializes engine teardown and startup, classifies failures,
// retries with backoff, and persists resumable state.
package playback

import (
	"context"
	"time"

	"github.com/talaplayer/tala/internal/device"
	"github.com/talaplayer/tala/internal/queue"
	"github.com/talaplayer/tala/internal/resolver"
	"github.com/talaplayer/tala/internal/state"
)

// TrackResolver maps a track to a playable source descriptor.
type TrackResolver interface {
	Resolve(ctx context.Context, t queue.Track, force bool) (resolver.Result, error)
}

// Store persists resumable playback state. All writes are best-effort and
// must not block the playback critical path.
type Store interface {
	SaveQueue(st state.QueueState) error
	GetQueue() (*state.QueueState, error)
	SavePosition(pos time.Duration)
}

// EventLogger records fire-and-forget playback telemetry.
type EventLogger interface {
	LogEvent(trackID, kind string)
}

// Snapshot is the read-only observable playback state.
type Snapshot struct {
	Track           *queue.Track
	Tracks          []queue.Track
	Index           int
	Shuffle         bool
	Loop            queue.LoopMode
	State           State
	DeviceConnected bool
}

// Options configures the playback service. Zero values select defaults.
type Options struct {
	Store     Store       // optional persistence adapter
	Telemetry EventLogger // optional telemetry sink

	RetryMax  int           // per-track failure budget (default 3)
	RetryBase time.Duration // backoff base (default 1s)

	// PreviousRestartAfter is the elapsed position beyond which
	// Previous() restarts the current track instead of navigating.
	PreviousRestartAfter time.Duration // default 5s

	PositionInterval time.Duration // position stream tick (default 500ms)
	PersistInterval  time.Duration // position checkpoint cadence (default 10s)
}

// Service defines the playback orchestrator contract.
type Service interface {
	// Playback control
	PlayTrack(t queue.Track)
	PlayQueue(tracks []queue.Track, initialIndex int)
	PlayAt(index int)
	Next()
	Previous()
	Stop()
	Pause()
	Resume()
	Toggle()
	SeekTo(pos time.Duration)

	// Mode control
	ToggleShuffle() bool
	CycleLoopMode() queue.LoopMode

	// State queries
	State() State
	Position() time.Duration
	Buffered() time.Duration
	Duration() time.Duration
	CurrentTrack() *queue.Track
	Snapshot() Snapshot
	DeviceConnected() bool

	// Queue queries
	QueueTracks() []queue.Track
	QueueCurrentIndex() int
	QueueLen() int

	// Lifecycle
	Hydrate() error
	ObserveDevice(events <-chan device.Event)
	Subscribe() *Subscription
	Close() error
}
