package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// BackendType selects how recording engines capture audio.
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

// EngineFactory creates the engine for one recording run.
type EngineFactory func(ctx context.Context, device CaptureDevice, settings AudioSettings) (RecordingEngine, error)

// Backend creates engines and lists capture sources.
type Backend interface {
	NewEngine(ctx context.Context, device CaptureDevice, settings AudioSettings) (RecordingEngine, error)
	ListSources() ([]string, error)
	ValidateSource(source string) error
	GetType() BackendType
}

// NewBackend returns the backend named in configuration. PipeWire is the
// only implementation; "auto" and "" resolve to it.
func NewBackend(name string, sampleRate int, logWriter io.Writer) (Backend, error) {
	switch BackendType(strings.ToLower(strings.TrimSpace(name))) {
	case BackendTypePipeWire, BackendTypeAuto, "":
		return &PipeWireBackend{
			sampleRate: sampleRate,
			logWriter:  logWriter,
			graph:      NewPortGraph(),
			lookPath:   exec.LookPath,
		}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %q (valid: pipewire, auto)", name)
	}
}

// PipeWireBackend records with ffmpeg through the pw-jack JACK shim.
type PipeWireBackend struct {
	sampleRate int
	logWriter  io.Writer
	graph      *PortGraph
	lookPath   func(file string) (string, error)
}

// NewEngine checks the tools and settings a run needs and creates an
// FFmpegRecorder for device.
func (b *PipeWireBackend) NewEngine(ctx context.Context, device CaptureDevice, settings AudioSettings) (RecordingEngine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio settings: %w", err)
	}
	for _, tool := range []string{"pw-jack", "ffmpeg", "pw-link"} {
		if _, err := b.lookPath(tool); err != nil {
			return nil, fmt.Errorf("%s is required for recording: %w", tool, err)
		}
	}

	recorder := NewFFmpegRecorder(device, settings, b.sampleRate, b.logWriter)
	recorder.graph = b.graph
	return recorder, nil
}

// ListSources returns the available PipeWire/JACK ports.
func (b *PipeWireBackend) ListSources() ([]string, error) {
	return b.graph.ListPorts()
}

// ValidateSource checks a configured source port.
func (b *PipeWireBackend) ValidateSource(source string) error {
	return b.graph.ValidatePort(source)
}

// GetType returns the backend type.
func (b *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}
