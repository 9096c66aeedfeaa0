package playback

import "testing"

func TestSubscription_NonBlockingSend(t *testing.T) {
	s := newSubscription()

	// Fill the buffer and keep sending: must never block or panic.
	for range eventBufferSize * 2 {
		s.sendState(StateChange{Previous: StateStopped, Current: StatePlaying})
	}

	if got := len(s.stateCh); got != eventBufferSize {
		t.Errorf("buffered = %d, want %d", got, eventBufferSize)
	}
}

func TestSubscription_Close(t *testing.T) {
	s := newSubscription()
	s.close()

	select {
	case <-s.Done:
	default:
		t.Error("Done should be closed")
	}
}
