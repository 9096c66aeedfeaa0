// Package engine defines the audio engine contract the orchestrator drives.
//
// The engine lifecycle is asynchronous: Load allocates and prepares a
// source, Stop flushes and releases it, and both must be awaited. Events
// (state transitions, natural completion, errors) are delivered on a
// channel and may arrive after the caller has moved on to another track;
// consumers are expected to discard stale ones.
package engine

import (
	"context"
	"time"
)

// Source is a resolved playable reference for one track.
// Local takes precedence over Remote when both are set.
type Source struct {
	TrackID string
	Local   string // local file path
	Remote  string // remote stream URL
}

// IsZero returns true if the source points at nothing.
func (s Source) IsZero() bool {
	return s.Local == "" && s.Remote == ""
}

// EventType identifies an engine event.
type EventType int

const (
	EventStateChanged EventType = iota
	EventCompleted              // source played to its natural end
	EventError                  // asynchronous playback failure
)

// Event is an asynchronous notification from the engine.
type Event struct {
	Type  EventType
	State State
	Err   error
}

// Engine is the decoder/playback contract.
//
// Load and Stop block until the engine has settled; the orchestrator
// serializes them and never issues a Load while a Stop is outstanding.
type Engine interface {
	// Load prepares src for playback. The engine ends up Paused at
	// position zero on success, Idle on failure.
	Load(ctx context.Context, src Source) error
	// Stop tears the current source down and waits for the flush and
	// release to complete. Idempotent.
	Stop(ctx context.Context) error

	Play()
	Pause()
	Resume()
	Seek(pos time.Duration)

	State() State
	Position() time.Duration
	Buffered() time.Duration
	Duration() time.Duration

	// Events returns the engine's event stream. Subscribed to once at
	// startup by the orchestrator.
	Events() <-chan Event

	Close() error
}
