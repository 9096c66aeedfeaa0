package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	zlog "github.com/rs/zerolog/log"

	"github.com/talaplayer/tala/internal/catalog"
	"github.com/talaplayer/tala/internal/config"
	"github.com/talaplayer/tala/internal/device"
	"github.com/talaplayer/tala/internal/engine"
	"github.com/talaplayer/tala/internal/logger"
	"github.com/talaplayer/tala/internal/mediacache"
	"github.com/talaplayer/tala/internal/playback"
	"github.com/talaplayer/tala/internal/queue"
	"github.com/talaplayer/tala/internal/resolver"
	"github.com/talaplayer/tala/internal/state"
)

type app struct {
	cfg      *config.Config
	stateMgr *state.Manager
	svc      playback.Service
	hub      *device.Hub
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Output: cfg.Log.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	stateMgr, err := state.Open()
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	var cache *mediacache.Cache
	if cfg.CacheDir != "" {
		cache, err = mediacache.New(cfg.CacheDir)
	} else {
		cache, err = mediacache.Open()
	}
	if err != nil {
		stateMgr.Close()
		return nil, fmt.Errorf("open media cache: %w", err)
	}

	opts := playback.Options{
		Store: stateMgr,
	}
	var res *resolver.Resolver
	if cfg.HasCatalog() {
		client := catalog.New(cfg.Catalog.BaseURL)
		res = resolver.New(cache, client, cfg.Catalog.TrustedHosts)
		opts.Telemetry = client
	} else {
		res = resolver.New(cache, nil, cfg.Catalog.TrustedHosts)
	}

	if cfg.Playback.RetryMax > 0 {
		opts.RetryMax = cfg.Playback.RetryMax
	}
	if cfg.Playback.RetryBaseMs > 0 {
		opts.RetryBase = time.Duration(cfg.Playback.RetryBaseMs) * time.Millisecond
	}
	if cfg.Playback.PreviousRestartSec > 0 {
		opts.PreviousRestartAfter = time.Duration(cfg.Playback.PreviousRestartSec * float64(time.Second))
	}

	eng := engine.NewBeep()
	svc := playback.New(eng, res, queue.New(), opts)

	if err := svc.Hydrate(); err != nil {
		zlog.Warn().Err(err).Msg("could not restore saved queue")
	}

	hub := device.NewHub()
	svc.ObserveDevice(hub.Events())
	hub.Publish(device.Event{Connected: true, Name: "default"})

	return &app{cfg: cfg, stateMgr: stateMgr, svc: svc, hub: hub}, nil
}

func (a *app) close() {
	a.hub.Close()
	if err := a.svc.Close(); err != nil {
		zlog.Warn().Err(err).Msg("playback close")
	}
	if err := a.stateMgr.Close(); err != nil {
		zlog.Warn().Err(err).Msg("state close")
	}
}

// watchEvents prints playback events to the console.
func (a *app) watchEvents() {
	sub := a.svc.Subscribe()
	go func() {
		for {
			select {
			case <-sub.Done:
				return
			case e := <-sub.TrackChanged:
				if e.Current != nil {
					fmt.Printf("now: %s - %s\n", e.Current.Artist, e.Current.Title)
				}
			case e := <-sub.StateChanged:
				zlog.Debug().Stringer("from", e.Previous).Stringer("to", e.Current).Msg("state")
			case e := <-sub.ModeChanged:
				fmt.Printf("shuffle=%v loop=%s\n", e.Shuffle, e.Loop)
			case e := <-sub.DeviceChanged:
				if !e.Connected {
					fmt.Println("audio device disconnected")
				}
			case e := <-sub.Error:
				fmt.Printf("error (%s, track %s): %v\n", e.Operation, e.TrackID, e.Err)
			case <-sub.QueueChanged:
			case <-sub.PositionChanged:
			}
		}
	}()
}

func main() {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	a.watchEvents()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.close()
		os.Exit(0)
	}()

	rl, err := readline.NewEx(&readline.Config{Prompt: "tala> "})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return
		}
		if done := a.dispatch(strings.Fields(strings.TrimSpace(line))); done {
			return
		}
	}
}

func (a *app) dispatch(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "play":
		if len(args) < 2 {
			if a.svc.QueueLen() > 0 && a.svc.State() == playback.StateStopped {
				a.svc.PlayAt(a.svc.QueueCurrentIndex())
			} else {
				a.svc.Resume()
			}
			return false
		}
		tracks := make([]queue.Track, 0, len(args)-1)
		for _, id := range args[1:] {
			tracks = append(tracks, queue.Track{ID: id})
		}
		a.svc.PlayQueue(tracks, 0)
	case "at":
		if len(args) < 2 {
			fmt.Println("usage: at <index>")
			return false
		}
		if i, err := strconv.Atoi(args[1]); err == nil {
			a.svc.PlayAt(i)
		}
	case "next", "n":
		a.svc.Next()
	case "prev":
		a.svc.Previous()
	case "stop":
		a.svc.Stop()
	case "pause":
		a.svc.Pause()
	case "resume":
		a.svc.Resume()
	case "p":
		a.svc.Toggle()
	case "seek":
		if len(args) < 2 {
			fmt.Println("usage: seek <seconds>")
			return false
		}
		if sec, err := strconv.ParseFloat(args[1], 64); err == nil {
			a.svc.SeekTo(time.Duration(sec * float64(time.Second)))
		}
	case "shuffle", "s":
		a.svc.ToggleShuffle()
	case "loop", "l":
		a.svc.CycleLoopMode()
	case "queue", "ls":
		a.printQueue()
	case "status", "st":
		a.printStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Println("commands: play [id...] at next prev stop pause resume p seek shuffle loop queue status quit")
	}
	return false
}

func (a *app) printQueue() {
	snap := a.svc.Snapshot()
	if len(snap.Tracks) == 0 {
		fmt.Println("queue is empty")
		return
	}
	for i, t := range snap.Tracks {
		marker := "  "
		if i == snap.Index {
			marker = "> "
		}
		fmt.Printf("%s%3d  %s - %s\n", marker, i, t.Artist, t.Title)
	}
}

func (a *app) printStatus() {
	snap := a.svc.Snapshot()
	fmt.Printf("state=%s shuffle=%v loop=%s device=%v\n",
		snap.State, snap.Shuffle, snap.Loop, snap.DeviceConnected)
	if snap.Track != nil {
		fmt.Printf("track: %s - %s [%s / %s]\n",
			snap.Track.Artist, snap.Track.Title,
			formatDuration(a.svc.Position()), formatDuration(a.svc.Duration()))
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
