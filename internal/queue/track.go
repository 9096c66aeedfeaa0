package queue

import "time"

// Track represents a single playable track in the queue.
// Tracks are treated as immutable values except for stream URL refresh,
// which replaces the whole slot via Queue.UpdateTrack.
type Track struct {
	ID         string // catalog track identifier
	Title      string
	Artist     string
	Album      string
	ImageURL   string
	StreamURL  string // remote stream URL, possibly empty or stale
	CachedPath string // local cache path, resolved lazily
	Duration   time.Duration
}
