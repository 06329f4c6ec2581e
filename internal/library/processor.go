package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/notify"
)

// ErrProcessorClosed is reported to completions enqueued after Close.
var ErrProcessorClosed = errors.New("processor is closed")

// Layout is what the processor needs from a session configuration.
type Layout struct {
	Formatter     FilePathFormatter
	AudioSettings audio.AudioSettings
}

// Completion receives the final library path of a recording, or the error
// that kept it out of the library. It runs on the processor's worker.
type Completion func(finalPath string, err error)

type job struct {
	path       string
	track      music.Track
	layout     Layout
	completion Completion
}

// Processor moves finished segments into the library one at a time, in the
// order they were enqueued. Enqueue never blocks on file system work.
type Processor struct {
	jobs   *notify.Queue[job]
	ledger *Ledger
	move   func(src, dst string) (string, error)
	now    func() time.Time

	mutex  sync.Mutex
	closed bool
	done   chan struct{}
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithLedger records every finalized recording in l.
func WithLedger(l *Ledger) ProcessorOption {
	return func(p *Processor) {
		p.ledger = l
	}
}

// NewProcessor starts a processor worker.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		jobs: notify.NewQueue[job](),
		move: MoveResolvingConflicts,
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()
	return p
}

// Enqueue schedules the recording at path for track. completion, when not
// nil, is called exactly once.
func (p *Processor) Enqueue(path string, track music.Track, layout Layout, completion Completion) {
	if completion == nil {
		completion = func(string, error) {}
	}

	p.mutex.Lock()
	closed := p.closed
	if !closed {
		p.jobs.Push(job{path: path, track: track, layout: layout, completion: completion})
	}
	p.mutex.Unlock()

	if closed {
		completion("", ErrProcessorClosed)
	}
}

// Pending returns the number of jobs waiting for the worker.
func (p *Processor) Pending() int {
	return p.jobs.Len()
}

// Close finishes every queued job and stops the worker.
func (p *Processor) Close() {
	p.mutex.Lock()
	if !p.closed {
		p.closed = true
		p.jobs.Close()
	}
	p.mutex.Unlock()

	<-p.done
}

func (p *Processor) run() {
	defer close(p.done)

	for j := range p.jobs.Out() {
		finalPath, err := p.process(j)
		if err != nil {
			slog.Error("Failed to add recording to library", "track", j.track.String(), "path", j.path, "error", err)
		}
		j.completion(finalPath, err)
	}
}

func (p *Processor) process(j job) (string, error) {
	dst, err := j.layout.Formatter.Path(j.track, j.layout.AudioSettings)
	if err != nil {
		return "", fmt.Errorf("failed to format library path: %w", err)
	}

	finalPath, err := p.move(j.path, dst)
	if err != nil {
		return "", fmt.Errorf("failed to move %s into library: %w", j.path, err)
	}
	slog.Info("Recording added to library", "track", j.track.String(), "path", finalPath)

	if p.ledger != nil {
		var size int64
		if info, err := os.Stat(finalPath); err == nil {
			size = info.Size()
		}
		entry := Entry{Track: j.track, Path: finalPath, Size: size, RecordedAt: p.now()}
		if err := p.ledger.Append(entry); err != nil {
			slog.Warn("Failed to update library ledger", "path", p.ledger.Path(), "error", err)
		}
	}
	return finalPath, nil
}
