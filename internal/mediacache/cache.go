// Package mediacache stores downloaded audio files keyed by track ID.
package mediacache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const cacheDirName = "tala/audio"

// audioExts are the extensions probed by Lookup, in preference order.
var audioExts = []string{".mp3", ".flac", ".aac", ".m4a"}

// Cache is an on-disk audio cache: one file per track ID.
type Cache struct {
	dir string
}

// Open opens the cache under the XDG cache dir.
func Open() (*Cache, error) {
	return New(filepath.Join(xdg.CacheHome, cacheDirName))
}

// New opens the cache at an explicit directory.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Lookup returns the cached file path for a track, if present.
func (c *Cache) Lookup(trackID string) (string, bool) {
	for _, ext := range audioExts {
		path := filepath.Join(c.dir, trackID+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Size() > 0 {
			return path, true
		}
	}
	return "", false
}

// Put stores audio data for a track. The write goes to a temp file first
// so a concurrent Lookup never sees a partial download.
func (c *Cache) Put(trackID, ext string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(c.dir, trackID+".*.part")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	path := filepath.Join(c.dir, trackID+ext)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// Remove deletes any cached file for a track.
func (c *Cache) Remove(trackID string) {
	for _, ext := range audioExts {
		os.Remove(filepath.Join(c.dir, trackID+ext))
	}
}
