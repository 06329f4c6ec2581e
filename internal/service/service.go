package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/config"
	"github.com/audiolibrelab/trackjack/internal/library"
	"github.com/audiolibrelab/trackjack/internal/metrics"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/session"
)

// Service represents the core TrackJack service interface
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context)
	Status(ctx context.Context) (session.Status, error)
	Subscribe() (<-chan session.Event, func())
	LastError() string

	// Information operations
	ListSources() ([]string, error)
	GetSourceStatus() map[string]string
	GetConfig() *config.Config
	Library() *library.Ledger
	Metrics() *metrics.Metrics

	Close()
}

// TrackJackService is the main service implementation
type TrackJackService struct {
	cfg         *config.Config
	backend     audio.Backend
	processor   *library.Processor
	ledger      *library.Ledger
	coordinator *session.Coordinator
	metrics     *metrics.Metrics
	device      audio.CaptureDevice

	observed  chan struct{}
	closeOnce sync.Once

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service talking to the configured MPD server and recording
// through the configured backend. logWriter receives ffmpeg output.
func New(cfg *config.Config, logWriter io.Writer) (Service, error) {
	backend, err := audio.NewBackend(cfg.Recording.Backend, cfg.Recording.SampleRate, logWriter)
	if err != nil {
		return nil, err
	}
	player := music.NewMPD(cfg.Player.Network, cfg.Player.Address, cfg.Player.Password)
	return newService(cfg, player, backend)
}

func newService(cfg *config.Config, player music.Application, backend audio.Backend) (*TrackJackService, error) {
	settings, err := cfg.AudioSettings()
	if err != nil {
		return nil, fmt.Errorf("invalid audio settings: %w", err)
	}

	ledger := library.NewLedger(cfg.Output.Directory)
	processor := library.NewProcessor(library.WithLedger(ledger))

	sessionConfig := session.Configuration{
		DisableShuffle: cfg.Player.DisableShuffle,
		DisableRepeat:  cfg.Player.DisableRepeat,
		Formatter:      cfg.Formatter(),
		AudioSettings:  settings,
	}
	coordinator := session.New(player, backend.NewEngine, processor, sessionConfig,
		session.WithTempPathGenerator(session.TempPathIn(cfg.Recording.TempDirectory)))

	s := &TrackJackService{
		cfg:         cfg,
		backend:     backend,
		processor:   processor,
		ledger:      ledger,
		coordinator: coordinator,
		metrics:     metrics.New(),
		device:      cfg.CaptureDevice(),
		observed:    make(chan struct{}),
	}

	events, _ := coordinator.Subscribe()
	go s.observe(events)

	return s, nil
}

// observe feeds metrics and error tracking until the coordinator closes.
func (s *TrackJackService) observe(events <-chan session.Event) {
	defer close(s.observed)

	for e := range events {
		s.metrics.Observe(e)

		switch e := e.(type) {
		case session.StateChanged:
			if e.Err != nil {
				s.setLastError(fmt.Sprintf("Recording stopped (%s): %v", e.Reason, e.Err))
			} else if e.To == session.Recording {
				s.clearLastError()
			}
		case session.RecordingFinalized:
			if e.Err != nil {
				s.setLastError(fmt.Sprintf("Failed to file %s: %v", e.Track.String(), e.Err))
			}
		}
	}
}

// StartRecording starts recording the configured capture device
func (s *TrackJackService) StartRecording(ctx context.Context) error {
	slog.Debug("Service.StartRecording called", "device", s.device.Name)
	s.clearLastError()

	err := s.coordinator.StartRecording(ctx, s.device, nil)
	if err != nil {
		slog.Error("Service.StartRecording failed", "error", err)
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
	}
	return err
}

// StopRecording stops the current recording run
func (s *TrackJackService) StopRecording(ctx context.Context) {
	s.coordinator.StopRecording(ctx)
}

// Status returns the coordinator state
func (s *TrackJackService) Status(ctx context.Context) (session.Status, error) {
	return s.coordinator.Status(ctx)
}

// Subscribe returns the coordinator event stream
func (s *TrackJackService) Subscribe() (<-chan session.Event, func()) {
	return s.coordinator.Subscribe()
}

// ListSources returns the capture ports the backend can see
func (s *TrackJackService) ListSources() ([]string, error) {
	return s.backend.ListSources()
}

// GetSourceStatus checks every configured source against the backend
func (s *TrackJackService) GetSourceStatus() map[string]string {
	status := make(map[string]string)
	for _, source := range s.device.EnabledSources() {
		if err := s.backend.ValidateSource(source); err != nil {
			slog.Debug("Source unavailable", "source", source, "error", err)
			status[source] = "missing"
		} else {
			status[source] = "available"
		}
	}
	return status
}

// GetConfig returns the service configuration
func (s *TrackJackService) GetConfig() *config.Config {
	return s.cfg
}

// Library returns the ledger of finalized recordings
func (s *TrackJackService) Library() *library.Ledger {
	return s.ledger
}

// Metrics returns the session metrics
func (s *TrackJackService) Metrics() *metrics.Metrics {
	return s.metrics
}

// Close finishes an active run, waits for queued recordings to be filed and
// releases the service
func (s *TrackJackService) Close() {
	s.closeOnce.Do(func() {
		s.coordinator.Close()
		s.processor.Close()
		<-s.observed
	})
}

// LastError returns the most recent failure, if any
func (s *TrackJackService) LastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *TrackJackService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
	slog.Debug("Service error set", "error", err)
}

func (s *TrackJackService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
