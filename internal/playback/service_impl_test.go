package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaplayer/tala/internal/device"
	"github.com/talaplayer/tala/internal/engine"
	"github.com/talaplayer/tala/internal/queue"
	"github.com/talaplayer/tala/internal/resolver"
	"github.com/talaplayer/tala/internal/state"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type resolveCall struct {
	trackID string
	force   bool
}

// fakeResolver scripts per-track resolve outcomes. Errors queued via
// failNext are consumed one per call; an exhausted queue means success.
type fakeResolver struct {
	mu    sync.Mutex
	delay time.Duration
	errs  map[string][]error
	calls []resolveCall
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{errs: make(map[string][]error)}
}

func (f *fakeResolver) Resolve(_ context.Context, t queue.Track, force bool) (resolver.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, resolveCall{trackID: t.ID, force: force})
	var err error
	if q := f.errs[t.ID]; len(q) > 0 {
		err = q[0]
		f.errs[t.ID] = q[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return resolver.Result{}, err
	}
	return resolver.Result{
		Source: engine.Source{TrackID: t.ID, Remote: "https://cdn.test/" + t.ID},
	}, nil
}

func (f *fakeResolver) failNext(trackID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[trackID] = append(f.errs[trackID], errs...)
}

func (f *fakeResolver) callsFor(trackID string) []resolveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []resolveCall
	for _, c := range f.calls {
		if c.trackID == trackID {
			out = append(out, c)
		}
	}
	return out
}

type testRig struct {
	eng   *engine.Mock
	res   *fakeResolver
	store *state.Mock
	svc   Service
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()
	eng := engine.NewMock()
	res := newFakeResolver()
	store := state.NewMock()
	if opts.Store == nil {
		opts.Store = store
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = 10 * time.Millisecond
	}
	svc := New(eng, res, queue.New(), opts)
	t.Cleanup(func() { _ = svc.Close() })
	return &testRig{eng: eng, res: res, store: store, svc: svc}
}

func tracks(ids ...string) []queue.Track {
	out := make([]queue.Track, len(ids))
	for i, id := range ids {
		out[i] = queue.Track{ID: id, Title: "title-" + id}
	}
	return out
}

// loadedIDs returns the track IDs of all engine Load calls so far.
func (r *testRig) loadedIDs() []string {
	calls := r.eng.LoadCalls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.TrackID
	}
	return out
}

func (r *testRig) waitPlaying(t *testing.T, trackID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		cur := r.svc.CurrentTrack()
		return r.svc.State() == StatePlaying && cur != nil && cur.ID == trackID
	}, waitFor, tick, "track %s never started playing", trackID)
}

func TestService_PlayQueue_StartsPlayback(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 0)

	r.waitPlaying(t, "a")
	assert.Equal(t, []string{"a"}, r.loadedIDs())
	assert.Equal(t, 0, r.svc.QueueCurrentIndex())
}

func TestService_PlayQueue_Empty(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(nil, 0)

	require.Eventually(t, func() bool {
		return r.svc.State() == StateStopped
	}, waitFor, tick)
	assert.Empty(t, r.loadedIDs())
}

func TestService_LastCommandWins(t *testing.T) {
	r := newTestRig(t, Options{})
	r.res.delay = 30 * time.Millisecond

	r.svc.PlayQueue(tracks("a", "b", "c"), 0)
	r.svc.PlayAt(1)
	r.svc.PlayAt(2)

	r.waitPlaying(t, "c")

	// Superseded sessions must never have reached the engine.
	assert.Equal(t, []string{"c"}, r.loadedIDs())
	assert.Equal(t, 1, r.eng.PlayCalls())
}

func TestService_RetryBackoffThenSkip(t *testing.T) {
	r := newTestRig(t, Options{})
	decodeErr := errors.New("mp3: invalid frame header")
	r.res.failNext("a", decodeErr, decodeErr, decodeErr)

	start := time.Now()
	r.svc.PlayQueue(tracks("a", "b"), 0)

	// Three failures consume the budget, then a skips to b.
	r.waitPlaying(t, "b")

	assert.Len(t, r.res.callsFor("a"), 3)
	// Two backoff waits happened: base and 2*base.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestService_NetworkRetriesRecoverSameTrack(t *testing.T) {
	r := newTestRig(t, Options{})
	netErr := errors.New("stream: connection timed out")
	// a loads fine; b fails twice at the engine, then succeeds.
	r.eng.FailNextLoads(nil, netErr, netErr)

	r.svc.PlayQueue(tracks("a", "b", "c"), 0)
	r.waitPlaying(t, "a")

	r.eng.SimulateCompleted()

	// The failing track keeps its queue slot through both retries.
	r.waitPlaying(t, "b")
	assert.Equal(t, 1, r.svc.QueueCurrentIndex())

	calls := r.res.callsFor("b")
	require.Len(t, calls, 3)
	assert.False(t, calls[0].force)
	assert.True(t, calls[1].force)
	assert.True(t, calls[2].force)
}

func TestService_SingleTrackExhausted_Stops(t *testing.T) {
	r := newTestRig(t, Options{})
	decodeErr := errors.New("flac: bad stream")
	r.res.failNext("a", decodeErr, decodeErr, decodeErr, decodeErr)

	r.svc.PlayQueue(tracks("a"), 0)

	require.Eventually(t, func() bool {
		return len(r.res.callsFor("a")) == 3 && r.svc.State() == StateStopped
	}, waitFor, tick)

	// Budget exhausted: no fourth attempt even after more waiting.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, r.res.callsFor("a"), 3)
	assert.Empty(t, r.loadedIDs())
}

func TestService_NetworkErrorForcesRefresh(t *testing.T) {
	r := newTestRig(t, Options{})
	netErr := errors.New("read: connection reset by peer")
	r.res.failNext("a", netErr)

	r.svc.PlayQueue(tracks("a"), 0)

	r.waitPlaying(t, "a")

	calls := r.res.callsFor("a")
	require.Len(t, calls, 2)
	assert.False(t, calls[0].force)
	assert.True(t, calls[1].force, "network retry must force a fresh resolution")
}

func TestService_NoSource_SkipsWithoutRetry(t *testing.T) {
	r := newTestRig(t, Options{})
	r.res.failNext("a", resolver.ErrNoSource)

	r.svc.PlayQueue(tracks("a", "b"), 0)

	r.waitPlaying(t, "b")
	assert.Len(t, r.res.callsFor("a"), 1, "unresolvable tracks are skipped, not retried")
	assert.Equal(t, []string{"b"}, r.loadedIDs())
}

func TestService_NoSource_SingleTrack_Stops(t *testing.T) {
	r := newTestRig(t, Options{})
	r.res.failNext("a", resolver.ErrNoSource)

	r.svc.PlayQueue(tracks("a"), 0)

	require.Eventually(t, func() bool {
		return len(r.res.callsFor("a")) == 1 && r.svc.State() == StateStopped
	}, waitFor, tick)
	assert.Empty(t, r.loadedIDs())
}

func TestService_StopSuppressesPendingRetry(t *testing.T) {
	r := newTestRig(t, Options{RetryBase: 50 * time.Millisecond})
	r.res.failNext("a", errors.New("mp3: short read"))

	r.svc.PlayQueue(tracks("a"), 0)

	require.Eventually(t, func() bool {
		return len(r.res.callsFor("a")) == 1
	}, waitFor, tick)

	r.svc.Stop()
	time.Sleep(120 * time.Millisecond)

	// The scheduled retry fired into a dead session and was dropped.
	assert.Len(t, r.res.callsFor("a"), 1)
	assert.Equal(t, StateStopped, r.svc.State())
}

func TestService_SecondFailureReplacesPendingRetry(t *testing.T) {
	r := newTestRig(t, Options{RetryBase: 60 * time.Millisecond})
	r.res.failNext("a", errors.New("mp3: truncated stream"))

	r.svc.PlayQueue(tracks("a"), 0)

	require.Eventually(t, func() bool {
		return len(r.res.callsFor("a")) == 1
	}, waitFor, tick)

	// An async engine error lands while the first retry is still pending;
	// it must replace that timer, not stack a second one for the session.
	r.eng.SimulateError(errors.New("decoder fault"))

	r.waitPlaying(t, "a")
	time.Sleep(150 * time.Millisecond)

	assert.Len(t, r.res.callsFor("a"), 2, "exactly one retry may fire per scheduling")
	assert.Equal(t, []string{"a"}, r.loadedIDs(), "a playing track must not be torn down by a stale timer")
	assert.Equal(t, 1, r.eng.PlayCalls())
}

func TestService_NoLoadWhileStopInFlight(t *testing.T) {
	r := newTestRig(t, Options{RetryBase: 20 * time.Millisecond})

	r.svc.PlayQueue(tracks("a"), 0)
	r.waitPlaying(t, "a")

	gate := make(chan struct{})
	r.eng.SetStopGate(gate)

	// The failure schedules a retry; the retry resolves, then blocks in
	// the gated engine teardown with the stopping flag set.
	r.eng.SimulateError(errors.New("mp3: corrupt frame"))
	require.Eventually(t, func() bool {
		return len(r.res.callsFor("a")) == 2
	}, waitFor, tick)

	// A second failure fires its retry inside the stopping window;
	// it is dropped, never queued behind the teardown.
	r.eng.SimulateError(errors.New("mp3: corrupt frame"))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"a"}, r.loadedIDs(), "no load may be issued while a stop is outstanding")
	assert.Len(t, r.res.callsFor("a"), 2, "a retry firing while stopping is dropped")

	close(gate)
	r.waitPlaying(t, "a")
	assert.Equal(t, []string{"a", "a"}, r.loadedIDs())

	// The dropped retry is never rescheduled.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, r.res.callsFor("a"), 2)
}

func TestService_BenignErrorIgnored(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a"), 0)
	r.waitPlaying(t, "a")

	r.eng.SimulateError(errors.New("decode aborted"))
	time.Sleep(50 * time.Millisecond)

	// No retry, no skip: the track keeps its session.
	assert.Len(t, r.res.callsFor("a"), 1)
	cur := r.svc.CurrentTrack()
	require.NotNil(t, cur)
	assert.Equal(t, "a", cur.ID)
}

func TestService_CompletionAdvances(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 0)
	r.waitPlaying(t, "a")

	r.eng.SimulateCompleted()
	r.waitPlaying(t, "b")

	r.eng.SimulateCompleted()
	require.Eventually(t, func() bool {
		return r.svc.State() == StateStopped
	}, waitFor, tick, "end of a non-repeating queue must stop")
}

func TestService_CompletionWrapsUnderLoopAll(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 1)
	r.waitPlaying(t, "b")

	r.svc.CycleLoopMode() // off -> all
	r.eng.SimulateCompleted()

	r.waitPlaying(t, "a")
}

func TestService_LoopOneReplays(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 0)
	r.waitPlaying(t, "a")

	r.svc.CycleLoopMode() // all
	r.svc.CycleLoopMode() // one
	r.eng.SimulateCompleted()

	require.Eventually(t, func() bool {
		ids := r.loadedIDs()
		return len(ids) == 2 && ids[1] == "a" && r.svc.State() == StatePlaying
	}, waitFor, tick)
}

func TestService_Previous_RestartsAfterThreshold(t *testing.T) {
	r := newTestRig(t, Options{PreviousRestartAfter: 5 * time.Second})

	r.svc.PlayQueue(tracks("a", "b"), 1)
	r.waitPlaying(t, "b")

	r.eng.SetPosition(6 * time.Second)
	r.svc.Previous()

	// Past the threshold: same track, seek to zero.
	cur := r.svc.CurrentTrack()
	require.NotNil(t, cur)
	assert.Equal(t, "b", cur.ID)
	require.NotEmpty(t, r.eng.SeekCalls())
	assert.Equal(t, time.Duration(0), r.eng.SeekCalls()[0])
}

func TestService_Previous_NavigatesEarly(t *testing.T) {
	r := newTestRig(t, Options{PreviousRestartAfter: 5 * time.Second})

	r.svc.PlayQueue(tracks("a", "b"), 1)
	r.waitPlaying(t, "b")

	r.eng.SetPosition(2 * time.Second)
	r.svc.Previous()

	r.waitPlaying(t, "a")
}

func TestService_Previous_NoopAtStart(t *testing.T) {
	r := newTestRig(t, Options{PreviousRestartAfter: 5 * time.Second})

	r.svc.PlayQueue(tracks("a", "b"), 0)
	r.waitPlaying(t, "a")

	r.eng.SetPosition(time.Second)
	r.svc.Previous()
	time.Sleep(50 * time.Millisecond)

	cur := r.svc.CurrentTrack()
	require.NotNil(t, cur)
	assert.Equal(t, "a", cur.ID)
	assert.Equal(t, []string{"a"}, r.loadedIDs())
}

func TestService_NextAtEnd_Stops(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 1)
	r.waitPlaying(t, "b")

	r.svc.Next()

	require.Eventually(t, func() bool {
		return r.svc.State() == StateStopped
	}, waitFor, tick)
}

func TestService_Hydrate_NeverAutoplays(t *testing.T) {
	store := state.NewMock()
	store.SetQueue(&state.QueueState{
		CurrentIndex: 1,
		PositionMs:   90000,
		Shuffle:      true,
		LoopMode:     int(queue.LoopAll),
		Tracks: []state.QueueTrack{
			{TrackID: "a", Title: "title-a"},
			{TrackID: "b", Title: "title-b"},
			{TrackID: "c", Title: "title-c"},
		},
	})
	r := newTestRig(t, Options{Store: store})

	require.NoError(t, r.svc.Hydrate())

	snap := r.svc.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.True(t, snap.Shuffle)
	assert.Equal(t, queue.LoopAll, snap.Loop)
	assert.Len(t, snap.Tracks, 3)
	assert.Equal(t, StateStopped, snap.State)
	assert.Empty(t, r.loadedIDs(), "hydration must not touch the engine")

	// The first explicit play resumes at the saved position.
	r.svc.PlayAt(1)
	r.waitPlaying(t, "b")
	require.NotEmpty(t, r.eng.SeekCalls())
	assert.Equal(t, 90*time.Second, r.eng.SeekCalls()[0])
}

func TestService_RestoredOffsetOnlyForSavedIndex(t *testing.T) {
	store := state.NewMock()
	store.SetQueue(&state.QueueState{
		CurrentIndex: 1,
		PositionMs:   90000,
		Tracks: []state.QueueTrack{
			{TrackID: "a"}, {TrackID: "b"}, {TrackID: "c"},
		},
	})
	r := newTestRig(t, Options{Store: store})
	require.NoError(t, r.svc.Hydrate())

	// Playing a slot other than the restored one discards the offset.
	r.svc.PlayAt(0)
	r.waitPlaying(t, "a")
	assert.Empty(t, r.eng.SeekCalls(), "restored offset must not apply to another track")

	// And it stays discarded for the saved index afterwards.
	r.svc.PlayAt(1)
	r.waitPlaying(t, "b")
	assert.Empty(t, r.eng.SeekCalls())
}

func TestService_Hydrate_EmptyStore(t *testing.T) {
	r := newTestRig(t, Options{})
	require.NoError(t, r.svc.Hydrate())
	assert.Equal(t, 0, r.svc.QueueLen())
}

func TestService_RefreshedDetailsUpdateQueue(t *testing.T) {
	eng := engine.NewMock()
	svc := New(eng, refreshingResolver{}, queue.New(), Options{Store: state.NewMock()})
	t.Cleanup(func() { _ = svc.Close() })

	svc.PlayQueue(tracks("a"), 0)

	require.Eventually(t, func() bool {
		cur := svc.CurrentTrack()
		return cur != nil && cur.StreamURL == "https://cdn.test/a-fresh"
	}, waitFor, tick, "refreshed metadata must replace the queue slot")
}

// refreshingResolver always returns refreshed track metadata.
type refreshingResolver struct{}

func (refreshingResolver) Resolve(_ context.Context, t queue.Track, _ bool) (resolver.Result, error) {
	refreshed := t
	refreshed.StreamURL = "https://cdn.test/" + t.ID + "-fresh"
	return resolver.Result{
		Source:    engine.Source{TrackID: t.ID, Remote: refreshed.StreamURL},
		Refreshed: &refreshed,
	}, nil
}

func TestService_PersistsOnQueueLoad(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a", "b"), 0)
	r.waitPlaying(t, "a")

	require.Eventually(t, func() bool {
		saved := r.store.SavedQueues()
		if len(saved) == 0 {
			return false
		}
		last := saved[len(saved)-1]
		return len(last.Tracks) == 2 && last.CurrentIndex == 0
	}, waitFor, tick)
}

func TestService_ToggleShuffle_EmitsAndPersists(t *testing.T) {
	r := newTestRig(t, Options{})
	sub := r.svc.Subscribe()

	r.svc.PlayQueue(tracks("a", "b", "c"), 0)
	r.waitPlaying(t, "a")

	on := r.svc.ToggleShuffle()
	assert.True(t, on)

	select {
	case e := <-sub.ModeChanged:
		assert.True(t, e.Shuffle)
	case <-time.After(waitFor):
		t.Fatal("no ModeChanged event")
	}

	require.Eventually(t, func() bool {
		saved := r.store.SavedQueues()
		return len(saved) > 0 && saved[len(saved)-1].Shuffle
	}, waitFor, tick)

	// Reordering never restarts playback.
	assert.Equal(t, []string{"a"}, r.loadedIDs())
}

func TestService_Subscribe_TrackChange(t *testing.T) {
	r := newTestRig(t, Options{})
	sub := r.svc.Subscribe()

	r.svc.PlayQueue(tracks("a", "b"), 0)

	select {
	case e := <-sub.TrackChanged:
		require.NotNil(t, e.Current)
		assert.Equal(t, "a", e.Current.ID)
		assert.Equal(t, 0, e.Index)
	case <-time.After(waitFor):
		t.Fatal("no TrackChanged event")
	}
}

func TestService_ErrorEventsPublished(t *testing.T) {
	r := newTestRig(t, Options{})
	sub := r.svc.Subscribe()
	r.res.failNext("a", errors.New("mp3: bad header"))

	r.svc.PlayQueue(tracks("a"), 0)

	select {
	case e := <-sub.Error:
		assert.Equal(t, "a", e.TrackID)
		assert.Equal(t, "resolve", e.Operation)
	case <-time.After(waitFor):
		t.Fatal("no Error event")
	}
}

func TestService_ObserveDevice(t *testing.T) {
	r := newTestRig(t, Options{})
	sub := r.svc.Subscribe()

	hub := device.NewHub()
	defer hub.Close()
	r.svc.ObserveDevice(hub.Events())

	hub.Publish(device.Event{Connected: true, Name: "headset"})

	select {
	case e := <-sub.DeviceChanged:
		assert.True(t, e.Connected)
	case <-time.After(waitFor):
		t.Fatal("no DeviceChanged event")
	}
	assert.True(t, r.svc.DeviceConnected())

	hub.Publish(device.Event{Connected: false})
	require.Eventually(t, func() bool {
		return !r.svc.DeviceConnected()
	}, waitFor, tick)
}

func TestService_PauseResumeToggle(t *testing.T) {
	r := newTestRig(t, Options{})

	r.svc.PlayQueue(tracks("a"), 0)
	r.waitPlaying(t, "a")

	r.svc.Pause()
	assert.Equal(t, StatePaused, r.svc.State())

	r.svc.Toggle()
	assert.Equal(t, StatePlaying, r.svc.State())

	r.svc.Toggle()
	assert.Equal(t, StatePaused, r.svc.State())

	r.svc.Resume()
	assert.Equal(t, StatePlaying, r.svc.State())
}

func TestService_Close_Idempotent(t *testing.T) {
	r := newTestRig(t, Options{})
	r.svc.PlayQueue(tracks("a"), 0)
	r.waitPlaying(t, "a")

	require.NoError(t, r.svc.Close())
	require.NoError(t, r.svc.Close())
}
