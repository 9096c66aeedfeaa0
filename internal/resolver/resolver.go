// Package resolver maps a track to a playable source descriptor.
//
// Preference order: local cache path, then an already-known stream URL on
// a trusted CDN host, then a fresh catalog details fetch. A force-refresh
// (after a network-classified failure) skips the known-URL branch and asks
// the catalog for a fresh URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/talaplayer/tala/internal/catalog"
	"github.com/talaplayer/tala/internal/engine"
	"github.com/talaplayer/tala/internal/queue"
)

// ErrNoSource means no playable source exists for the track. This is a
// distinguishable outcome, not a transport error: there is nothing to
// retry, the track is skipped.
var ErrNoSource = errors.New("no playable source")

// defaultTrustedHosts are the CDN hosts whose stream URLs are presumed
// still valid without a details fetch.
var defaultTrustedHosts = []string{"saavncdn.com"}

// CacheLookup checks the local audio cache for a track.
type CacheLookup interface {
	Lookup(trackID string) (string, bool)
}

// DetailsFetcher fetches fresh track details from the catalog.
type DetailsFetcher interface {
	GetDetails(ctx context.Context, trackID string, forceRefresh bool) (*catalog.Song, error)
}

// Result is a successful resolution. Refreshed is non-nil when a catalog
// fetch produced updated track metadata that should replace the queue slot.
type Result struct {
	Source    engine.Source
	Refreshed *queue.Track
}

// Resolver resolves tracks to playable sources.
type Resolver struct {
	cache        CacheLookup
	catalog      DetailsFetcher
	trustedHosts []string
}

// New creates a resolver. trustedHosts may be nil to use the defaults.
func New(cache CacheLookup, cat DetailsFetcher, trustedHosts []string) *Resolver {
	if len(trustedHosts) == 0 {
		trustedHosts = defaultTrustedHosts
	}
	return &Resolver{
		cache:        cache,
		catalog:      cat,
		trustedHosts: trustedHosts,
	}
}

// Resolve maps t to a source descriptor.
func (r *Resolver) Resolve(ctx context.Context, t queue.Track, force bool) (Result, error) {
	if t.ID == "" {
		return Result{}, ErrNoSource
	}

	if r.cache != nil {
		if path, ok := r.cache.Lookup(t.ID); ok {
			return Result{Source: engine.Source{TrackID: t.ID, Local: path}}, nil
		}
	}

	if !force && t.StreamURL != "" && r.hostTrusted(t.StreamURL) {
		return Result{Source: engine.Source{TrackID: t.ID, Remote: t.StreamURL}}, nil
	}

	if r.catalog == nil {
		return Result{}, ErrNoSource
	}

	song, err := r.catalog.GetDetails(ctx, t.ID, force)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Result{}, ErrNoSource
		}
		return Result{}, fmt.Errorf("fetch details for %s: %w", t.ID, err)
	}

	if song.StreamURL == "" {
		zlog.Debug().Str("track", t.ID).Msg("resolver: catalog returned no stream url")
		return Result{}, ErrNoSource
	}

	refreshed := mergeDetails(t, song)
	return Result{
		Source:    engine.Source{TrackID: t.ID, Remote: song.StreamURL},
		Refreshed: &refreshed,
	}, nil
}

// hostTrusted reports whether the URL's host matches a trusted CDN host
// or one of its subdomains.
func (r *Resolver) hostTrusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range r.trustedHosts {
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}

// mergeDetails folds fetched details into the queue track, keeping
// existing fields where the catalog returned nothing.
func mergeDetails(t queue.Track, song *catalog.Song) queue.Track {
	t.StreamURL = song.StreamURL
	if song.Title != "" {
		t.Title = song.Title
	}
	if song.Artist != "" {
		t.Artist = song.Artist
	}
	if song.Album != "" {
		t.Album = song.Album
	}
	if song.ImageURL != "" {
		t.ImageURL = song.ImageURL
	}
	if song.Duration > 0 {
		t.Duration = time.Duration(song.Duration * float64(time.Second))
	}
	return t
}
