package mediacache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCache_PutAndLookup(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path, err := c.Put("track1", ".mp3", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := c.Lookup("track1")
	if !ok {
		t.Fatal("Lookup() should find the stored file")
	}
	if got != path {
		t.Errorf("Lookup() = %q, want %q", got, path)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("content = %q, want audio-bytes", data)
	}
}

func TestCache_Lookup_Miss(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup() should miss for unknown track")
	}
}

func TestCache_Lookup_IgnoresEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// A zero-byte file is a failed download, not a cache hit.
	if err := os.WriteFile(filepath.Join(dir, "track1.mp3"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Lookup("track1"); ok {
		t.Error("Lookup() should ignore empty files")
	}
}

func TestCache_Lookup_PrefersMp3(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, name := range []string{"track1.flac", "track1.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, ok := c.Lookup("track1")
	if !ok || filepath.Ext(got) != ".mp3" {
		t.Errorf("Lookup() = %q, %v, want .mp3 hit", got, ok)
	}
}

func TestCache_Remove(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := c.Put("track1", ".mp3", strings.NewReader("x")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	c.Remove("track1")

	if _, ok := c.Lookup("track1"); ok {
		t.Error("Lookup() should miss after Remove")
	}
}

func TestCache_Put_NoPartialVisible(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := c.Put("track1", ".mp3", strings.NewReader("x")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".part") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}
