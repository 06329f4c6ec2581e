package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/library"
)

// Configuration holds the settings of a recording run. The coordinator
// copies it when a run starts.
type Configuration struct {
	DisableShuffle bool
	DisableRepeat  bool
	Formatter      library.FilePathFormatter
	AudioSettings  audio.AudioSettings
}

// Layout returns the part of c the processor needs.
func (c Configuration) Layout() library.Layout {
	return library.Layout{Formatter: c.Formatter, AudioSettings: c.AudioSettings}
}

// TempPathGenerator returns a fresh path for the next segment file.
type TempPathGenerator func(settings audio.AudioSettings) (string, error)

// TempPathIn returns a generator of unique segment paths inside dir. An
// empty dir means the system temporary directory.
func TempPathIn(dir string) TempPathGenerator {
	return func(settings audio.AudioSettings) (string, error) {
		base := dir
		if base == "" {
			base = os.TempDir()
		}
		if err := os.MkdirAll(base, 0755); err != nil {
			return "", fmt.Errorf("failed to create temporary directory: %w", err)
		}
		name := fmt.Sprintf("trackjack-%s.%s", uuid.NewString(), settings.Container.FileExtension())
		return filepath.Join(base, name), nil
	}
}
