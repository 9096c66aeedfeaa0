// internal/playback/service_impl.go
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/talaplayer/tala/internal/device"
	"github.com/talaplayer/tala/internal/engine"
	"github.com/talaplayer/tala/internal/queue"
	"github.com/talaplayer/tala/internal/resolver"
	"github.com/talaplayer/tala/internal/state"
)

// Verify serviceImpl implements Service at compile time.
var _ Service = (*serviceImpl)(nil)

type serviceImpl struct {
	mu sync.Mutex

	eng       engine.Engine
	res       TrackResolver
	q         *queue.Queue
	store     Store
	telemetry EventLogger
	opts      Options

	// Session state. token and stopping are owned exclusively by this
	// service; continuations carry captured token values, never read the
	// field directly.
	token      SessionToken
	stopping   bool
	retries    *retryTracker
	retryTimer *time.Timer

	// pendingSeek is a restored position offset applied when the restored
	// queue slot is first played explicitly; playing any other slot
	// discards it. Hydration never issues engine commands.
	pendingSeek      time.Duration
	pendingSeekIndex int

	deviceOK  bool
	lastState State

	subs   []*Subscription
	subsMu sync.RWMutex

	done   chan struct{}
	closed bool
}

// New creates a new playback service and starts its event and position
// loops. The engine's event stream is consumed here and nowhere else.
func New(eng engine.Engine, res TrackResolver, q *queue.Queue, opts Options) Service {
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.PreviousRestartAfter <= 0 {
		opts.PreviousRestartAfter = 5 * time.Second
	}
	if opts.PositionInterval <= 0 {
		opts.PositionInterval = 500 * time.Millisecond
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = 10 * time.Second
	}

	s := &serviceImpl{
		eng:              eng,
		res:              res,
		q:                q,
		store:            opts.Store,
		telemetry:        opts.Telemetry,
		opts:             opts,
		retries:          newRetryTracker(),
		pendingSeekIndex: -1,
		done:             make(chan struct{}),
	}

	go s.runEngineEvents()
	go s.runPositionTicker()

	return s
}

// --- Playback control ---

// PlayTrack replaces the queue with a single track and plays it.
func (s *serviceImpl) PlayTrack(t queue.Track) {
	s.PlayQueue([]queue.Track{t}, 0)
}

// PlayQueue replaces the queue and starts playback. With shuffle enabled
// the selected track is pinned to position 0. All retry state is cleared.
func (s *serviceImpl) PlayQueue(tracks []queue.Track, initialIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.retries.clear()
	s.clearPendingSeekLocked()
	start := s.q.Load(tracks, initialIndex)
	s.publishQueueLocked()

	if start < 0 {
		s.stopPlaybackLocked()
		s.saveQueueLocked()
		return
	}
	s.playIndexLocked(start, false)
}

// PlayAt starts playback of the queue slot at index.
// Out-of-range indices are a no-op.
func (s *serviceImpl) PlayAt(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.q.Track(index) == nil {
		return
	}
	s.playIndexLocked(index, false)
}

// Next advances to the next track. At the end of a non-repeating queue
// playback stops; with loop-all it wraps to the first track.
func (s *serviceImpl) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.q.IsEmpty() {
		return
	}
	if next, ok := s.q.NextIndex(); ok {
		s.playIndexLocked(next, false)
		return
	}
	s.stopPlaybackLocked()
	s.saveQueueLocked()
}

// Previous restarts the current track when more than the restart threshold
// has elapsed; otherwise it navigates to the previous track, wrapping
// under loop-all and no-opping at the start of a non-repeating queue.
func (s *serviceImpl) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.q.IsEmpty() {
		return
	}

	if s.eng.Position() > s.opts.PreviousRestartAfter {
		if s.eng.State().IsActive() {
			s.eng.Seek(0)
			s.publish(func(sub *Subscription) {
				sub.sendPosition(PositionChange{Duration: s.eng.Duration(), Buffered: s.eng.Buffered()})
			})
		} else {
			s.playIndexLocked(s.q.CurrentIndex(), false)
		}
		return
	}

	if prev, ok := s.q.PrevIndex(); ok {
		s.playIndexLocked(prev, false)
	}
}

// Stop halts playback. The stopping flag suppresses any retry that fires
// while the engine teardown is in flight: a user-directed stop always wins.
func (s *serviceImpl) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopPlaybackLocked()
	s.saveQueueLocked()
}

// Pause pauses the engine.
func (s *serviceImpl) Pause() {
	s.eng.Pause()
	s.mu.Lock()
	s.publishStateLocked()
	s.mu.Unlock()
	s.savePositionCheckpoint()
}

// Resume resumes the engine.
func (s *serviceImpl) Resume() {
	s.eng.Resume()
	s.mu.Lock()
	s.publishStateLocked()
	s.mu.Unlock()
}

// Toggle toggles between playing and paused.
func (s *serviceImpl) Toggle() {
	switch engineStateToState(s.eng.State()) {
	case StatePlaying:
		s.Pause()
	case StatePaused:
		s.Resume()
	default:
		// Nothing to toggle when stopped
	}
}

// SeekTo moves playback to pos.
func (s *serviceImpl) SeekTo(pos time.Duration) {
	if !s.eng.State().IsActive() {
		return
	}
	s.eng.Seek(pos)
	s.publish(func(sub *Subscription) {
		sub.sendPosition(PositionChange{
			Position: pos,
			Buffered: s.eng.Buffered(),
			Duration: s.eng.Duration(),
		})
	})
	s.savePositionCheckpoint()
}

// --- Mode control ---

// ToggleShuffle flips shuffle mode and returns the new flag. Reordering
// never restarts the current track.
func (s *serviceImpl) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	on := s.q.ToggleShuffle()
	s.publishModeLocked()
	s.publishQueueLocked()
	s.saveQueueLocked()
	return on
}

// CycleLoopMode advances loop mode (off -> all -> one) and returns it.
func (s *serviceImpl) CycleLoopMode() queue.LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := s.q.CycleLoop()
	s.publishModeLocked()
	s.saveQueueLocked()
	return mode
}

// --- State queries ---

func (s *serviceImpl) State() State {
	return engineStateToState(s.eng.State())
}

func (s *serviceImpl) Position() time.Duration {
	return s.eng.Position()
}

func (s *serviceImpl) Buffered() time.Duration {
	return s.eng.Buffered()
}

func (s *serviceImpl) Duration() time.Duration {
	return s.eng.Duration()
}

// CurrentTrack returns a copy of the current track, or nil if none.
func (s *serviceImpl) CurrentTrack() *queue.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTrackLocked()
}

func (s *serviceImpl) currentTrackLocked() *queue.Track {
	t := s.q.Current()
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Snapshot returns the read-only observable playback state.
func (s *serviceImpl) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Track:           s.currentTrackLocked(),
		Tracks:          s.q.Tracks(),
		Index:           s.q.CurrentIndex(),
		Shuffle:         s.q.Shuffle(),
		Loop:            s.q.Loop(),
		State:           engineStateToState(s.eng.State()),
		DeviceConnected: s.deviceOK,
	}
}

func (s *serviceImpl) DeviceConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceOK
}

// --- Queue queries ---

func (s *serviceImpl) QueueTracks() []queue.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Tracks()
}

func (s *serviceImpl) QueueCurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CurrentIndex()
}

func (s *serviceImpl) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// --- Lifecycle ---

// Hydrate restores the saved queue, position and modes. It only prepares
// state; playback never auto-resumes and no engine command is issued.
func (s *serviceImpl) Hydrate() error {
	if s.store == nil {
		return nil
	}
	saved, err := s.store.GetQueue()
	if err != nil {
		return err
	}
	if saved == nil || len(saved.Tracks) == 0 {
		return nil
	}

	tracks := make([]queue.Track, len(saved.Tracks))
	for i, t := range saved.Tracks {
		tracks[i] = queue.Track{
			ID:        t.TrackID,
			Title:     t.Title,
			Artist:    t.Artist,
			Album:     t.Album,
			ImageURL:  t.ImageURL,
			StreamURL: t.StreamURL,
			Duration:  time.Duration(t.DurationMs) * time.Millisecond,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Restore(tracks, saved.CurrentIndex, saved.Shuffle, queue.LoopMode(saved.LoopMode))
	s.pendingSeek = time.Duration(saved.PositionMs) * time.Millisecond
	s.pendingSeekIndex = s.q.CurrentIndex()
	s.retries.clear()
	s.publishQueueLocked()
	s.publishModeLocked()
	return nil
}

// ObserveDevice consumes device connectivity events and keeps the
// observable flag current. No playback-altering action is taken.
func (s *serviceImpl) ObserveDevice(events <-chan device.Event) {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				s.mu.Lock()
				changed := s.deviceOK != e.Connected
				s.deviceOK = e.Connected
				if changed {
					s.publish(func(sub *Subscription) {
						sub.sendDevice(DeviceChange{Connected: e.Connected})
					})
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Subscribe creates a new event subscription.
func (s *serviceImpl) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

// Close invalidates all in-flight continuations, stops the engine and
// writes a final state snapshot.
func (s *serviceImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mintSessionLocked()
	s.cancelRetryLocked()
	close(s.done)
	snap := s.queueStateLocked()
	s.mu.Unlock()

	_ = s.eng.Stop(context.Background())
	if s.store != nil {
		_ = s.store.SaveQueue(snap)
	}

	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsMu.Unlock()

	return nil
}

// --- Session core ---

// playIndexLocked mints a new session for the queue slot at index and
// starts the asynchronous resolve/teardown/load pipeline. Minting the
// token invalidates every continuation of the previous session.
func (s *serviceImpl) playIndexLocked(index int, forceResolve bool) {
	prev := s.currentTrackLocked()
	prevIndex := s.q.CurrentIndex()

	token := s.mintSessionLocked()
	s.cancelRetryLocked()
	s.stopping = false
	s.q.SetIndex(index)
	if index != s.pendingSeekIndex {
		s.clearPendingSeekLocked()
	}

	cur := s.q.Track(index)
	if cur == nil {
		return
	}
	track := *cur

	s.publish(func(sub *Subscription) {
		cp := track
		sub.sendTrack(TrackChange{
			Previous:      prev,
			Current:       &cp,
			PreviousIndex: prevIndex,
			Index:         index,
		})
	})
	s.saveQueueLocked()

	go s.startSession(token, index, track, forceResolve)
}

// startSession runs one playback attempt: resolve, serialized
// teardown-then-start, play. The captured token is compared against the
// current one after every await boundary; on mismatch the attempt was
// superseded and returns without side effects.
func (s *serviceImpl) startSession(token SessionToken, index int, track queue.Track, forceResolve bool) {
	ctx := context.Background()

	result, err := s.res.Resolve(ctx, track, forceResolve)

	s.mu.Lock()
	if !s.sessionCurrentLocked(token) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		if errors.Is(err, resolver.ErrNoSource) {
			// Nothing to retry: unconditional skip.
			zlog.Warn().Str("track", track.ID).Msg("playback: track unresolvable, skipping")
			s.publish(func(sub *Subscription) {
				sub.sendError(ErrorEvent{Operation: "resolve", TrackID: track.ID, Err: err})
			})
			s.skipUnplayableLocked()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.handleFailure(token, index, track, "resolve", err)
		return
	}

	if result.Refreshed != nil {
		s.q.UpdateTrack(index, *result.Refreshed)
		track = *result.Refreshed
		s.publishQueueLocked()
	}

	// Serialized teardown-then-start: a Load must never be posted while
	// the engine's teardown is still in flight.
	needStop := s.eng.State() != engine.Idle
	if needStop {
		s.stopping = true
	}
	s.mu.Unlock()

	if needStop {
		stopErr := s.eng.Stop(ctx)

		s.mu.Lock()
		if token == s.token {
			s.stopping = false
		}
		if !s.sessionCurrentLocked(token) {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if stopErr != nil {
			s.handleFailure(token, index, track, "stop", stopErr)
			return
		}
	}

	loadErr := s.eng.Load(ctx, result.Source)

	s.mu.Lock()
	if !s.sessionCurrentLocked(token) {
		s.mu.Unlock()
		return
	}
	if loadErr != nil {
		s.mu.Unlock()
		s.handleFailure(token, index, track, "load", loadErr)
		return
	}

	s.retries.reset(track.ID)
	if index == s.pendingSeekIndex {
		if s.pendingSeek > 0 {
			s.eng.Seek(s.pendingSeek)
		}
		s.clearPendingSeekLocked()
	}
	s.eng.Play()
	s.publishStateLocked()
	s.mu.Unlock()

	zlog.Debug().Str("track", track.ID).Int("index", index).Msg("playback: started")
	if s.telemetry != nil {
		s.telemetry.LogEvent(track.ID, "play")
	}
}

// handleFailure routes a playback failure through the classifier and the
// retry policy. Only failures belonging to the current session are acted on.
func (s *serviceImpl) handleFailure(token SessionToken, index int, track queue.Track, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sessionCurrentLocked(token) {
		return
	}

	class := Classify(err)
	if class == ClassBenign {
		// Expected consequence of a deliberate stop in progress.
		zlog.Debug().Str("track", track.ID).Err(err).Msg("playback: benign interruption ignored")
		return
	}

	s.publish(func(sub *Subscription) {
		sub.sendError(ErrorEvent{Operation: op, TrackID: track.ID, Err: err})
	})

	failures := s.retries.fail(track.ID)
	if failures >= s.opts.RetryMax {
		zlog.Warn().Str("track", track.ID).Int("failures", failures).Err(err).
			Msg("playback: retries exhausted, skipping track")
		s.skipUnplayableLocked()
		return
	}

	// At most one pending retry per session: a second failure handled
	// while a timer is live replaces it instead of stacking a duplicate.
	s.cancelRetryLocked()

	delay := retryDelay(s.opts.RetryBase, failures)
	force := class == ClassNetwork
	zlog.Info().Str("track", track.ID).Str("class", class.String()).
		Dur("delay", delay).Int("attempt", failures).Err(err).
		Msg("playback: retrying after backoff")

	s.retryTimer = time.AfterFunc(delay, func() {
		s.fireRetry(token, index, force)
	})
}

// fireRetry runs when a backoff timer elapses. It is gated twice: the
// captured token must still be current, and no stop may be in flight —
// a retry that fires while stopping is dropped, never rescheduled.
func (s *serviceImpl) fireRetry(token SessionToken, index int, forceResolve bool) {
	s.mu.Lock()
	if !s.sessionCurrentLocked(token) || s.stopping {
		s.mu.Unlock()
		return
	}
	t := s.q.Track(index)
	if t == nil {
		s.mu.Unlock()
		return
	}
	track := *t
	s.mu.Unlock()

	s.startSession(token, index, track, forceResolve)
}

// skipUnplayableLocked advances past a track that cannot play: next track
// if there is one, otherwise a full stop with no further auto-advance.
func (s *serviceImpl) skipUnplayableLocked() {
	if s.q.Len() > 1 {
		if next, ok := s.q.NextIndex(); ok {
			s.playIndexLocked(next, false)
			return
		}
	}
	s.stopPlaybackLocked()
	s.saveQueueLocked()
}

// stopPlaybackLocked mints a terminal session and tears the engine down
// asynchronously. The stopping flag stays set until teardown completes.
func (s *serviceImpl) stopPlaybackLocked() {
	token := s.mintSessionLocked()
	s.cancelRetryLocked()
	s.stopping = true

	go func() {
		_ = s.eng.Stop(context.Background())
		s.mu.Lock()
		if token == s.token {
			s.stopping = false
		}
		s.publishStateLocked()
		s.mu.Unlock()
	}()
}

func (s *serviceImpl) clearPendingSeekLocked() {
	s.pendingSeek = 0
	s.pendingSeekIndex = -1
}

func (s *serviceImpl) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// --- Engine event loop ---

func (s *serviceImpl) runEngineEvents() {
	events := s.eng.Events()
	for {
		select {
		case <-s.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case engine.EventCompleted:
				s.handleCompleted()
			case engine.EventError:
				s.handleEngineError(e.Err)
			case engine.EventStateChanged:
				s.mu.Lock()
				s.publishStateLocked()
				s.mu.Unlock()
			}
		}
	}
}

// handleCompleted advances on natural track completion: loop-one replays
// the same slot, otherwise next-or-stop.
func (s *serviceImpl) handleCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.q.Current() == nil {
		return
	}

	if s.q.Loop() == queue.LoopOne {
		s.playIndexLocked(s.q.CurrentIndex(), false)
		return
	}

	if next, ok := s.q.NextIndex(); ok {
		s.playIndexLocked(next, false)
		return
	}

	// End of a non-repeating queue. The engine is already idle.
	s.mintSessionLocked()
	s.cancelRetryLocked()
	s.publishStateLocked()
	s.saveQueueLocked()
}

// handleEngineError routes an asynchronous decoder error into the same
// classifier/backoff path as resolve and load failures.
func (s *serviceImpl) handleEngineError(err error) {
	s.mu.Lock()
	token := s.token
	cur := s.q.Current()
	if s.closed || cur == nil {
		s.mu.Unlock()
		return
	}
	track := *cur
	index := s.q.CurrentIndex()
	s.mu.Unlock()

	s.handleFailure(token, index, track, "decode", err)
}

// --- Position stream and persistence ---

func (s *serviceImpl) runPositionTicker() {
	ticker := time.NewTicker(s.opts.PositionInterval)
	defer ticker.Stop()

	lastPersist := time.Now()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if engineStateToState(s.eng.State()) != StatePlaying {
				continue
			}
			pos := s.eng.Position()
			s.publish(func(sub *Subscription) {
				sub.sendPosition(PositionChange{
					Position: pos,
					Buffered: s.eng.Buffered(),
					Duration: s.eng.Duration(),
				})
			})
			if s.store != nil && time.Since(lastPersist) >= s.opts.PersistInterval {
				s.store.SavePosition(pos)
				lastPersist = time.Now()
			}
		}
	}
}

// saveQueueLocked writes a full state checkpoint off the critical path.
func (s *serviceImpl) saveQueueLocked() {
	if s.store == nil {
		return
	}
	snap := s.queueStateLocked()
	go func() {
		if err := s.store.SaveQueue(snap); err != nil {
			zlog.Debug().Err(err).Msg("playback: state checkpoint failed")
		}
	}()
}

func (s *serviceImpl) savePositionCheckpoint() {
	if s.store == nil {
		return
	}
	s.store.SavePosition(s.eng.Position())
}

func (s *serviceImpl) queueStateLocked() state.QueueState {
	tracks := s.q.Tracks()
	saved := make([]state.QueueTrack, len(tracks))
	for i, t := range tracks {
		saved[i] = state.QueueTrack{
			TrackID:    t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			ImageURL:   t.ImageURL,
			StreamURL:  t.StreamURL,
			DurationMs: t.Duration.Milliseconds(),
		}
	}
	return state.QueueState{
		CurrentIndex: s.q.CurrentIndex(),
		PositionMs:   s.eng.Position().Milliseconds(),
		Shuffle:      s.q.Shuffle(),
		LoopMode:     int(s.q.Loop()),
		Tracks:       saved,
	}
}

// --- Event publication ---

func (s *serviceImpl) publish(fn func(*Subscription)) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		fn(sub)
	}
}

func (s *serviceImpl) publishStateLocked() {
	cur := engineStateToState(s.eng.State())
	if cur == s.lastState {
		return
	}
	prev := s.lastState
	s.lastState = cur
	s.publish(func(sub *Subscription) {
		sub.sendState(StateChange{Previous: prev, Current: cur})
	})
}

func (s *serviceImpl) publishQueueLocked() {
	tracks := s.q.Tracks()
	index := s.q.CurrentIndex()
	s.publish(func(sub *Subscription) {
		sub.sendQueue(QueueChange{Tracks: tracks, Index: index})
	})
}

func (s *serviceImpl) publishModeLocked() {
	shuffle := s.q.Shuffle()
	loop := s.q.Loop()
	s.publish(func(sub *Subscription) {
		sub.sendMode(ModeChange{Shuffle: shuffle, Loop: loop})
	})
}
