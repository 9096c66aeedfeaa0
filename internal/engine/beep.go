package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

const fetchTimeout = 30 * time.Second

// ErrEmptySource is returned by Load when the source points at nothing.
var ErrEmptySource = errors.New("engine: empty source")

var speakerInitialized bool

// Beep is the local audio engine built on gopxl/beep. Remote sources are
// fetched to a temp file before decoding so the streamer stays seekable.
type Beep struct {
	mu sync.Mutex

	state    State
	gen      int // load generation; stale speaker callbacks are dropped
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	format   beep.Format
	file     *os.File
	tempPath string // downloaded remote source, removed on stop

	events chan Event
	closed bool

	httpClient *http.Client
}

// NewBeep creates a new beep-backed engine.
func NewBeep() *Beep {
	return &Beep{
		state:  Idle,
		events: make(chan Event, 16),
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// Events returns the engine event stream.
func (b *Beep) Events() <-chan Event {
	return b.events
}

// Load prepares the source for playback. On success the engine is Paused
// at position zero; call Play to start audio.
func (b *Beep) Load(ctx context.Context, src Source) error {
	if src.IsZero() {
		return ErrEmptySource
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("engine: closed")
	}
	b.stopLocked()
	b.setStateLocked(Loading)
	b.mu.Unlock()

	path := src.Local
	tempPath := ""
	if path == "" {
		fetched, err := b.fetch(ctx, src.Remote)
		if err != nil {
			b.failLoad()
			return err
		}
		path = fetched
		tempPath = fetched
	}

	f, err := os.Open(path)
	if err != nil {
		removeIfSet(tempPath)
		b.failLoad()
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch sourceExt(path, src.Remote) {
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		removeIfSet(tempPath)
		b.failLoad()
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		streamer.Close()
		f.Close()
		removeIfSet(tempPath)
		return errors.New("engine: closed")
	}

	if !speakerInitialized {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			f.Close()
			removeIfSet(tempPath)
			b.setStateLocked(Idle)
			return err
		}
		speakerInitialized = true
	}

	b.gen++
	gen := b.gen
	b.file = f
	b.tempPath = tempPath
	b.streamer = streamer
	b.format = format
	b.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}

	speaker.Play(beep.Seq(b.ctrl, beep.Callback(func() {
		b.onStreamEnd(gen)
	})))

	b.setStateLocked(Paused)
	return nil
}

// Stop tears down the current source and waits for release to complete.
func (b *Beep) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	return nil
}

// Play starts or restarts audio output.
func (b *Beep) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil || b.state != Paused {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	b.setStateLocked(Playing)
}

// Pause pauses audio output.
func (b *Beep) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil || b.state != Playing {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	b.setStateLocked(Paused)
}

// Resume resumes paused audio output.
func (b *Beep) Resume() {
	b.Play()
}

// Seek moves playback to pos.
func (b *Beep) Seek(pos time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return
	}
	n := b.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if n >= b.streamer.Len() {
		n = b.streamer.Len() - 1
	}
	speaker.Lock()
	_ = b.streamer.Seek(n)
	speaker.Unlock()
}

// State returns the current engine state.
func (b *Beep) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Position returns the current playback position.
func (b *Beep) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Position())
}

// Buffered returns how much of the source is available. Decoding happens
// from a local file, so the whole track is always buffered once loaded.
func (b *Beep) Buffered() time.Duration {
	return b.Duration()
}

// Duration returns the total duration of the loaded source.
func (b *Beep) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Len())
}

// Close stops playback and closes the event stream.
func (b *Beep) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.stopLocked()
	b.closed = true
	close(b.events)
	return nil
}

// onStreamEnd fires from the speaker goroutine when a sequence finishes.
// A generation mismatch means the source was already torn down.
func (b *Beep) onStreamEnd(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen || b.state == Idle {
		return
	}
	b.releaseLocked()
	b.state = Idle
	b.emitLocked(Event{Type: EventCompleted, State: b.state})
}

func (b *Beep) stopLocked() {
	if b.state == Idle {
		return
	}
	b.setStateLocked(Stopping)
	b.gen++ // invalidate the pending completion callback
	speaker.Clear()
	b.releaseLocked()
	b.setStateLocked(Idle)
}

func (b *Beep) releaseLocked() {
	if b.streamer != nil {
		b.streamer.Close()
		b.streamer = nil
	}
	if b.file != nil {
		b.file.Close()
		b.file = nil
	}
	removeIfSet(b.tempPath)
	b.tempPath = ""
	b.ctrl = nil
}

func (b *Beep) setStateLocked(s State) {
	if b.state == s {
		return
	}
	b.state = s
	b.emitLocked(Event{Type: EventStateChanged, State: s})
}

func (b *Beep) emitLocked(e Event) {
	if b.closed {
		return
	}
	select {
	case b.events <- e:
	default:
	}
}

// failLoad resets state after a Load failure that happened outside the lock.
func (b *Beep) failLoad() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Loading {
		b.setStateLocked(Idle)
	}
}

// fetch downloads a remote source to a temp file.
func (b *Beep) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("fetch source: unexpected http status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "tala-*"+sourceExt("", rawURL))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// sourceExt picks a decoder hint from the local path or the URL path.
func sourceExt(path, rawURL string) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".mp3" || ext == ".flac" {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(filepath.Ext(u.Path)); ext == ".mp3" || ext == ".flac" {
			return ext
		}
	}
	return ".mp3"
}

func removeIfSet(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// Verify Beep implements Engine at compile time.
var _ Engine = (*Beep)(nil)
