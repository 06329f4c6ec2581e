package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/library"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/notify"
)

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("coordinator is closed")

	errTrackStreamClosed = errors.New("track change stream closed")
)

// RecordingProcessor files finished segments into the library.
type RecordingProcessor interface {
	Enqueue(path string, track music.Track, layout library.Layout, completion library.Completion)
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithTempPathGenerator replaces the default temporary segment paths.
func WithTempPathGenerator(g TempPathGenerator) Option {
	return func(c *Coordinator) {
		c.tempPath = g
	}
}

// Coordinator keeps a music player and a recording engine in step: one
// segment per track, from StartRecording until the queue runs out, the
// engine fails or StopRecording is called.
//
// All state lives on a single goroutine. Public methods send it a request
// and wait for the answer; player and engine events are read by the same
// goroutine in the order they arrive.
type Coordinator struct {
	app       music.Application
	newEngine audio.EngineFactory
	processor RecordingProcessor
	config    Configuration
	tempPath  TempPathGenerator

	hub       *notify.Hub[Event]
	requests  chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// ctx is handed to collaborators for work not tied to a caller. It is
	// cancelled when the loop exits.
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	state State
	run   *run
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// run is the per-run state. It exists from a successful start until the
// engine reports that it stopped.
type run struct {
	engine       audio.RecordingEngine
	events       <-chan audio.EngineEvent
	trackIDs     <-chan music.TrackID
	stopWatching context.CancelFunc
	lastID       music.TrackID
	paused       bool

	device   audio.CaptureDevice
	config   Configuration
	segments map[string]music.Track
	current  *music.Track

	segmentCount int
	reason       StopReason
	err          error
}

type transitionKey struct{}

// inTransition marks contexts passed to collaborators from the loop.
func inTransition(ctx context.Context) context.Context {
	return context.WithValue(ctx, transitionKey{}, true)
}

func isInTransition(ctx context.Context) bool {
	v, _ := ctx.Value(transitionKey{}).(bool)
	return v
}

// New creates a coordinator and starts its loop. cfg is used for runs
// started without their own configuration.
func New(app music.Application, newEngine audio.EngineFactory, processor RecordingProcessor, cfg Configuration, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		app:       app,
		newEngine: newEngine,
		processor: processor,
		config:    cfg,
		tempPath:  TempPathIn(""),
		hub:       notify.NewHub[Event](),
		requests:  make(chan request),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       inTransition(ctx),
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.loop()
	return c
}

// StartRecording starts a run on device. It does nothing when a run is
// already in progress, the device has no enabled source, or the player has
// no current track. Errors creating the engine or starting the first
// segment are returned and leave the coordinator not recording. A nil cfg
// uses the configuration given to New.
func (c *Coordinator) StartRecording(ctx context.Context, device audio.CaptureDevice, cfg *Configuration) error {
	var err error
	if callErr := c.call(ctx, func(ctx context.Context) {
		err = c.start(ctx, device, cfg)
	}); callErr != nil {
		return callErr
	}
	return err
}

// StopRecording ends the current run. The coordinator is EndingRecording
// when it returns and reaches NotRecording once the engine has finalized
// its last segment. It does nothing when not recording.
func (c *Coordinator) StopRecording(ctx context.Context) {
	_ = c.call(ctx, func(ctx context.Context) {
		c.stopRun(ctx, ReasonRequested, nil)
	})
}

// State returns the current state.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	status, err := c.Status(ctx)
	return status.State, err
}

// IsRecording reports whether a run is in progress.
func (c *Coordinator) IsRecording(ctx context.Context) bool {
	state, err := c.State(ctx)
	return err == nil && state.IsRecording()
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.call(ctx, func(context.Context) {
		status = newStatus(c.state, c.run)
	})
	return status, err
}

// Subscribe returns a channel of every event published from now on and a
// func that cancels the subscription. The channel is closed after Close.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	return c.hub.Subscribe()
}

// Close stops an active run, waits for the engine to finalize it and then
// stops the loop. Finished segments are still handed to the processor.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

func (c *Coordinator) call(ctx context.Context, fn func(ctx context.Context)) error {
	if isInTransition(ctx) {
		panic("session: coordinator called from inside one of its own transitions")
	}

	req := request{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-req.done
	return nil
}

func (c *Coordinator) loop() {
	defer close(c.done)
	defer c.hub.Close()
	defer c.cancel()

	requests := c.requests
	quit := c.quit
	for {
		if quit == nil && c.run == nil {
			return
		}

		var trackIDs <-chan music.TrackID
		var events <-chan audio.EngineEvent
		if c.run != nil {
			trackIDs = c.run.trackIDs
			events = c.run.events
		}

		select {
		case req := <-requests:
			req.fn(inTransition(req.ctx))
			close(req.done)
		case id, ok := <-trackIDs:
			c.handleTrackID(id, ok)
		case ev, ok := <-events:
			c.handleEngineEvent(ev, ok)
		case <-quit:
			quit, requests = nil, nil
			c.stopRun(c.ctx, ReasonRequested, nil)
		}
	}
}

func (c *Coordinator) start(ctx context.Context, device audio.CaptureDevice, cfg *Configuration) error {
	if c.state != NotRecording {
		slog.Debug("Recording already in progress", "state", c.state)
		return nil
	}
	if !device.Available() {
		slog.Warn("No capture device available", "device", device.Name)
		return nil
	}

	track, err := c.app.CurrentTrack(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current track: %w", err)
	}
	if track == nil {
		slog.Info("Nothing is playing, not starting a recording")
		return nil
	}

	config := c.config
	if cfg != nil {
		config = *cfg
	}

	engine, err := c.newEngine(ctx, device, config.AudioSettings)
	if err != nil {
		return fmt.Errorf("failed to create recording engine: %w", err)
	}

	r := &run{
		engine:   engine,
		events:   engine.Events(),
		lastID:   track.ID,
		device:   device,
		config:   config,
		segments: make(map[string]music.Track),
	}

	path, err := c.prepare(ctx, r, *track)
	if err != nil {
		if r.stopWatching != nil {
			r.stopWatching()
		}
		engine.StopRecording(ctx)
		go discard(r.events)
		if r.paused {
			if playErr := c.app.Play(ctx); playErr != nil {
				slog.Warn("Failed to resume playback after aborted start", "error", playErr)
			}
		}
		return err
	}

	c.run = r
	c.setState(Recording, ReasonNone, nil)
	c.hub.Publish(SegmentStarted{Track: *track, Path: path})
	slog.Info("Recording started", "device", device.Name, "settings", config.AudioSettings.String())
	return nil
}

// prepare readies the player, subscribes to track changes, starts the
// first segment and resumes playback. It returns the first segment's path.
func (c *Coordinator) prepare(ctx context.Context, r *run, track music.Track) (string, error) {
	if err := c.app.Pause(ctx); err != nil {
		return "", fmt.Errorf("failed to pause player: %w", err)
	}
	r.paused = true
	if err := c.app.SetPlayerPosition(ctx, 0); err != nil {
		return "", fmt.Errorf("failed to rewind track: %w", err)
	}
	if r.config.DisableShuffle {
		if err := c.app.SetShuffleEnabled(ctx, false); err != nil {
			return "", fmt.Errorf("failed to disable shuffle: %w", err)
		}
	}
	if r.config.DisableRepeat {
		if err := c.app.SetRepeatEnabled(ctx, false); err != nil {
			return "", fmt.Errorf("failed to disable repeat: %w", err)
		}
	}

	watchCtx, stopWatching := context.WithCancel(c.ctx)
	trackIDs, err := c.app.WatchTrackIDs(watchCtx)
	if err != nil {
		stopWatching()
		return "", fmt.Errorf("failed to watch track changes: %w", err)
	}
	r.trackIDs, r.stopWatching = trackIDs, stopWatching

	path, err := c.startSegment(ctx, r, track)
	if err != nil {
		return "", err
	}

	if err := c.app.Play(ctx); err != nil {
		return "", fmt.Errorf("failed to resume playback: %w", err)
	}
	r.paused = false
	return path, nil
}

// startSegment asks the engine to record track into a new temporary file.
func (c *Coordinator) startSegment(ctx context.Context, r *run, track music.Track) (string, error) {
	path, err := c.tempPath(r.config.AudioSettings)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary path: %w", err)
	}

	cfg := audio.RecordingConfiguration{FileLocation: path, Track: track}
	if err := r.engine.StartNewRecording(ctx, cfg); err != nil {
		c.hub.Publish(SegmentFailed{Track: track, Path: path, Err: err})
		return "", fmt.Errorf("failed to start recording %s: %w", track.String(), err)
	}

	r.segments[path] = track
	r.current = &track
	r.segmentCount++
	slog.Info("Recording track", "track", track.String(), "path", path)
	return path, nil
}

func (c *Coordinator) handleTrackID(id music.TrackID, ok bool) {
	r := c.run
	if !ok {
		r.trackIDs = nil
		slog.Warn("Track change stream ended")
		c.stopRun(c.ctx, ReasonPlayerFailure, errTrackStreamClosed)
		return
	}
	if c.state != Recording || id == r.lastID {
		return
	}
	if id == music.NoTrack {
		slog.Info("Playback queue exhausted")
		c.stopRun(c.ctx, ReasonQueueExhausted, nil)
		return
	}

	r.lastID = id
	track, err := c.app.CurrentTrack(c.ctx)
	if err != nil {
		c.stopRun(c.ctx, ReasonPlayerFailure, fmt.Errorf("failed to get current track: %w", err))
		return
	}
	if track == nil {
		slog.Info("Playback queue exhausted")
		c.stopRun(c.ctx, ReasonQueueExhausted, nil)
		return
	}
	r.lastID = track.ID

	path, err := c.startSegment(c.ctx, r, *track)
	if err != nil {
		slog.Error("Failed to start next segment", "error", err)
		c.stopRun(c.ctx, ReasonEngineFailure, err)
		return
	}
	c.hub.Publish(SegmentStarted{Track: *track, Path: path})
}

func (c *Coordinator) handleEngineEvent(ev audio.EngineEvent, ok bool) {
	r := c.run
	if !ok {
		slog.Warn("Recording engine closed without reporting a stop")
		r.events = nil
		c.finishRun()
		return
	}

	switch ev.Kind {
	case audio.SegmentFinished:
		track, known := r.segments[ev.Path]
		if !known {
			slog.Warn("Ignoring unknown segment", "path", ev.Path)
			return
		}
		delete(r.segments, ev.Path)

		if ev.Err != nil {
			slog.Error("Recording segment failed", "track", track.String(), "error", ev.Err)
			c.hub.Publish(SegmentFailed{Track: track, Path: ev.Path, Err: ev.Err})
			c.stopRun(c.ctx, ReasonEngineFailure, ev.Err)
			return
		}
		c.enqueue(r, ev.Path, track)

	case audio.EngineStopped:
		c.finishRun()

	default:
		slog.Warn("Ignoring unknown engine event", "kind", ev.Kind)
	}
}

// enqueue hands a finished segment to the processor.
func (c *Coordinator) enqueue(r *run, path string, track music.Track) {
	slog.Debug("Segment finished", "track", track.String(), "path", path)
	c.processor.Enqueue(path, track, r.config.Layout(), func(finalPath string, err error) {
		if err != nil {
			slog.Debug("Recording was not filed", "track", track.String(), "error", err)
		} else {
			slog.Debug("Recording filed", "track", track.String(), "path", finalPath)
		}
		c.hub.Publish(RecordingFinalized{Track: track, Path: finalPath, Err: err})
	})
}

// stopRun moves a running session to EndingRecording. The track
// subscription is cancelled before the engine is told to stop, so no
// track change is acted on afterwards.
func (c *Coordinator) stopRun(ctx context.Context, reason StopReason, err error) {
	if c.state != Recording && c.state != StartingRecording {
		return
	}

	r := c.run
	r.reason, r.err = reason, err
	r.stopWatching()
	r.trackIDs = nil

	c.setState(EndingRecording, reason, err)
	r.engine.StopRecording(ctx)
}

// finishRun releases the engine once it has stopped.
func (c *Coordinator) finishRun() {
	r := c.run
	c.run = nil
	r.stopWatching()

	if c.state != EndingRecording && r.reason == ReasonNone {
		r.reason, r.err = ReasonEngineFailure, audio.ErrEngineStopped
	}
	if r.events != nil {
		go discard(r.events)
	}

	c.setState(NotRecording, r.reason, r.err)
	slog.Info("Recording stopped", "reason", r.reason.String(), "segments", r.segmentCount)
}

func (c *Coordinator) setState(to State, reason StopReason, err error) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	slog.Debug("Recording state changed", "from", from, "to", to)
	c.hub.Publish(StateChanged{From: from, To: to, Reason: reason, Err: err})
}

// discard consumes the events of an engine that is no longer part of a run
// and removes segment files nobody will pick up.
func discard(events <-chan audio.EngineEvent) {
	for ev := range events {
		if ev.Kind == audio.SegmentFinished && ev.Err == nil && ev.Path != "" {
			if err := os.Remove(ev.Path); err != nil {
				slog.Debug("Failed to remove abandoned segment", "path", ev.Path, "error", err)
			}
		}
	}
}
