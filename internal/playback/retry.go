package playback

import "time"

const (
	// defaultRetryMax is the per-track failure budget within one queue
	// load: the third failure is terminal (retryCount == 3 means skip).
	defaultRetryMax = 3
	// defaultRetryBase is the backoff base; failure n waits base << (n-1).
	// The debounce exists to avoid rapid teardown/recreate cycling against
	// the engine.
	defaultRetryBase = time.Second
)

// retryTracker counts consecutive failures per track ID, scoped to the
// lifetime of one loaded queue. The counter is incremented even when a
// Network retry is about to force-refresh the URL: a successful refresh
// still consumes budget. That bounds total retries per track; it is a
// deliberate policy choice, adjustable via Options.RetryMax.
type retryTracker struct {
	counts map[string]int
}

func newRetryTracker() *retryTracker {
	return &retryTracker{counts: make(map[string]int)}
}

// fail increments and returns the failure count for a track.
func (r *retryTracker) fail(trackID string) int {
	r.counts[trackID]++
	return r.counts[trackID]
}

// reset clears the counter for a track that started playing successfully.
func (r *retryTracker) reset(trackID string) {
	delete(r.counts, trackID)
}

// clear drops all counters; called when a new queue is loaded.
func (r *retryTracker) clear() {
	r.counts = make(map[string]int)
}

// retryDelay returns the backoff before the nth retry: 1s, 2s, 4s, ...
func retryDelay(base time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	return base << (failures - 1)
}
