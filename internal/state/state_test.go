package state

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := OpenAt(filepath.Join(t.TempDir(), "tala.db"))
	if err != nil {
		t.Fatalf("OpenAt() error: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestGetQueue_FirstRun(t *testing.T) {
	m := openTestManager(t)

	st, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue() error: %v", err)
	}
	if st != nil {
		t.Errorf("GetQueue() = %+v, want nil on first run", st)
	}
}

func TestSaveAndGetQueue(t *testing.T) {
	m := openTestManager(t)

	saved := QueueState{
		CurrentIndex: 1,
		PositionMs:   45000,
		Shuffle:      true,
		LoopMode:     2,
		Tracks: []QueueTrack{
			{TrackID: "a", Title: "First", Artist: "Artist A", DurationMs: 180000},
			{TrackID: "b", Title: "Second", Album: "Album B", StreamURL: "https://cdn.test/b.mp3"},
		},
	}
	if err := m.SaveQueue(saved); err != nil {
		t.Fatalf("SaveQueue() error: %v", err)
	}

	got, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetQueue() = nil, want saved state")
	}

	if got.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", got.CurrentIndex)
	}
	if got.PositionMs != 45000 {
		t.Errorf("PositionMs = %d, want 45000", got.PositionMs)
	}
	if !got.Shuffle {
		t.Error("Shuffle should be true")
	}
	if got.LoopMode != 2 {
		t.Errorf("LoopMode = %d, want 2", got.LoopMode)
	}
	if len(got.Tracks) != 2 {
		t.Fatalf("len(Tracks) = %d, want 2", len(got.Tracks))
	}
	if got.Tracks[0].TrackID != "a" || got.Tracks[1].TrackID != "b" {
		t.Errorf("track order = %s, %s, want a, b", got.Tracks[0].TrackID, got.Tracks[1].TrackID)
	}
	if got.Tracks[0].DurationMs != 180000 {
		t.Errorf("DurationMs = %d, want 180000", got.Tracks[0].DurationMs)
	}
	if got.Tracks[1].StreamURL != "https://cdn.test/b.mp3" {
		t.Errorf("StreamURL = %q", got.Tracks[1].StreamURL)
	}
}

func TestSaveQueue_ReplacesPrevious(t *testing.T) {
	m := openTestManager(t)

	if err := m.SaveQueue(QueueState{Tracks: []QueueTrack{{TrackID: "a"}, {TrackID: "b"}}}); err != nil {
		t.Fatalf("SaveQueue() error: %v", err)
	}
	if err := m.SaveQueue(QueueState{CurrentIndex: 0, Tracks: []QueueTrack{{TrackID: "c"}}}); err != nil {
		t.Fatalf("SaveQueue() error: %v", err)
	}

	got, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue() error: %v", err)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].TrackID != "c" {
		t.Errorf("Tracks = %+v, want single track c", got.Tracks)
	}
}

func TestSavePosition_Debounced(t *testing.T) {
	m := openTestManager(t)

	if err := m.SaveQueue(QueueState{Tracks: []QueueTrack{{TrackID: "a"}}}); err != nil {
		t.Fatalf("SaveQueue() error: %v", err)
	}

	// Rapid checkpoints collapse into the last one.
	m.SavePosition(1 * time.Second)
	m.SavePosition(2 * time.Second)
	m.SavePosition(3 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := m.GetQueue()
		if err != nil {
			t.Fatalf("GetQueue() error: %v", err)
		}
		if got.PositionMs == 3000 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("PositionMs = %d, want 3000 after debounce", got.PositionMs)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestClose_FlushesPendingPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tala.db")
	m, err := OpenAt(path)
	if err != nil {
		t.Fatalf("OpenAt() error: %v", err)
	}

	if err := m.SaveQueue(QueueState{Tracks: []QueueTrack{{TrackID: "a"}}}); err != nil {
		t.Fatalf("SaveQueue() error: %v", err)
	}
	m.SavePosition(7 * time.Second)
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Reopen and verify the pending checkpoint survived.
	m2, err := OpenAt(path)
	if err != nil {
		t.Fatalf("OpenAt() error: %v", err)
	}
	defer m2.Close()

	got, err := m2.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue() error: %v", err)
	}
	if got == nil || got.PositionMs != 7000 {
		t.Errorf("PositionMs = %v, want 7000", got)
	}
}
