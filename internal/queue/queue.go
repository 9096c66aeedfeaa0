package queue

import "math/rand/v2"

// LoopMode defines the repeat behavior of the queue.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopAll
	LoopOne
)

// String returns the loop mode name.
func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "Off"
	case LoopAll:
		return "All"
	case LoopOne:
		return "One"
	default:
		return "Unknown"
	}
}

// Queue holds the active (possibly shuffled) play order plus the original
// order used to restore it when shuffle is disabled.
//
// Invariant: once shuffle has been toggled, active and original contain the
// same multiset of track IDs. The current index is a valid slot into the
// active order whenever the queue is non-empty, -1 otherwise.
type Queue struct {
	active   []Track
	original []Track
	index    int // -1 if nothing current
	shuffle  bool
	loop     LoopMode
}

// New creates a new empty queue.
func New() *Queue {
	return &Queue{index: -1}
}

// Load replaces the queue contents and positions it for playback.
// With shuffle enabled the incoming list is shuffled but the track at
// initialIndex is pinned to position 0, so playback starts on the selected
// track. Returns the index playback should start at.
func (q *Queue) Load(tracks []Track, initialIndex int) int {
	q.original = make([]Track, len(tracks))
	copy(q.original, tracks)

	q.active = make([]Track, len(tracks))
	copy(q.active, tracks)

	if len(tracks) == 0 {
		q.index = -1
		return -1
	}

	initialIndex = clamp(initialIndex, 0, len(tracks)-1)

	if q.shuffle && len(tracks) >= 2 {
		q.shuffleActivePinned(initialIndex)
		q.index = 0
	} else {
		q.index = initialIndex
	}
	return q.index
}

// Restore replaces the queue contents verbatim from persisted state.
// Unlike Load it never reorders: tracks is taken as the active order
// (already shuffled if shuffle was on when saved).
func (q *Queue) Restore(tracks []Track, index int, shuffle bool, loop LoopMode) {
	q.active = make([]Track, len(tracks))
	copy(q.active, tracks)
	q.original = make([]Track, len(tracks))
	copy(q.original, tracks)
	q.shuffle = shuffle
	q.loop = loop

	if len(tracks) == 0 {
		q.index = -1
		return
	}
	q.index = clamp(index, 0, len(tracks)-1)
}

// Current returns the current track, or nil if none.
func (q *Queue) Current() *Track {
	return q.Track(q.index)
}

// CurrentIndex returns the index of the current track (-1 if none).
func (q *Queue) CurrentIndex() int {
	return q.index
}

// SetIndex moves the current position to index.
// Returns false if index is out of bounds.
func (q *Queue) SetIndex(index int) bool {
	if index < 0 || index >= len(q.active) {
		return false
	}
	q.index = index
	return true
}

// Track returns the track at index, or nil if out of bounds.
func (q *Queue) Track(index int) *Track {
	if index < 0 || index >= len(q.active) {
		return nil
	}
	return &q.active[index]
}

// UpdateTrack replaces the slot at index, typically after a stream URL
// refresh. The matching entry in the original order is replaced too so the
// refresh survives a later shuffle toggle.
func (q *Queue) UpdateTrack(index int, t Track) bool {
	if index < 0 || index >= len(q.active) {
		return false
	}
	q.active[index] = t
	for i := range q.original {
		if q.original[i].ID == t.ID {
			q.original[i] = t
			break
		}
	}
	return true
}

// Tracks returns a copy of the active order.
func (q *Queue) Tracks() []Track {
	result := make([]Track, len(q.active))
	copy(result, q.active)
	return result
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.active)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.active) == 0
}

// NextIndex returns the index that follows the current one.
// At the end of the queue it wraps to 0 under LoopAll; otherwise it
// returns false, meaning playback should stop.
func (q *Queue) NextIndex() (int, bool) {
	if len(q.active) == 0 || q.index < 0 {
		return -1, false
	}
	if q.index+1 < len(q.active) {
		return q.index + 1, true
	}
	if q.loop == LoopAll {
		return 0, true
	}
	return -1, false
}

// PrevIndex returns the index that precedes the current one.
// At the start of the queue it wraps to the last index under LoopAll;
// otherwise it returns false, meaning previous() is a no-op.
func (q *Queue) PrevIndex() (int, bool) {
	if len(q.active) == 0 || q.index < 0 {
		return -1, false
	}
	if q.index > 0 {
		return q.index - 1, true
	}
	if q.loop == LoopAll {
		return len(q.active) - 1, true
	}
	return -1, false
}

// Shuffle returns whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// ToggleShuffle flips shuffle mode and returns the new flag.
//
// With fewer than 2 tracks only the flag changes. Enabling shuffle
// snapshots the current order as original, shuffles the active list and
// pins the current track to position 0. Disabling restores the original
// order and relocates the index to the current track's original position,
// falling back to 0 if the track is no longer present.
func (q *Queue) ToggleShuffle() bool {
	q.shuffle = !q.shuffle

	if len(q.active) < 2 {
		return q.shuffle
	}

	if q.shuffle {
		q.original = make([]Track, len(q.active))
		copy(q.original, q.active)
		q.shuffleActivePinned(q.index)
		if q.index >= 0 {
			q.index = 0
		}
		return true
	}

	var currentID string
	if cur := q.Current(); cur != nil {
		currentID = cur.ID
	}

	q.active = make([]Track, len(q.original))
	copy(q.active, q.original)

	if q.index >= 0 {
		q.index = 0
		for i := range q.active {
			if q.active[i].ID == currentID {
				q.index = i
				break
			}
		}
	}
	return false
}

// SetShuffle sets shuffle mode, reordering as ToggleShuffle would.
func (q *Queue) SetShuffle(enabled bool) {
	if q.shuffle != enabled {
		q.ToggleShuffle()
	}
}

// Loop returns the current loop mode.
func (q *Queue) Loop() LoopMode {
	return q.loop
}

// SetLoop sets the loop mode.
func (q *Queue) SetLoop(mode LoopMode) {
	q.loop = mode
}

// CycleLoop advances the loop mode (off -> all -> one -> off) and returns
// the new mode.
func (q *Queue) CycleLoop() LoopMode {
	switch q.loop {
	case LoopOff:
		q.loop = LoopAll
	case LoopAll:
		q.loop = LoopOne
	default:
		q.loop = LoopOff
	}
	return q.loop
}

// shuffleActivePinned shuffles the active list in place, then moves the
// track at pinIndex to position 0.
func (q *Queue) shuffleActivePinned(pinIndex int) {
	var pinID string
	if pinIndex >= 0 && pinIndex < len(q.active) {
		pinID = q.active[pinIndex].ID
	}

	rand.Shuffle(len(q.active), func(i, j int) {
		q.active[i], q.active[j] = q.active[j], q.active[i]
	})

	if pinID == "" {
		return
	}
	for i := range q.active {
		if q.active[i].ID == pinID {
			q.active[0], q.active[i] = q.active[i], q.active[0]
			break
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
