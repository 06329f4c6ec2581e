package session

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/trackjack/internal/audio"
)

func TestTempPathIn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "segments")
	generate := TempPathIn(dir)
	settings := audio.AudioSettings{Encoding: audio.EncodingFLAC, Container: audio.ContainerFLAC}

	first, err := generate(settings)
	require.NoError(t, err)
	second, err := generate(settings)
	require.NoError(t, err)

	assert.DirExists(t, dir)
	assert.Equal(t, dir, filepath.Dir(first))
	assert.True(t, strings.HasPrefix(filepath.Base(first), "trackjack-"))
	assert.Equal(t, ".flac", filepath.Ext(first))
	assert.NotEqual(t, first, second)
}

func TestConfigurationLayout(t *testing.T) {
	cfg := Configuration{
		DisableShuffle: true,
		AudioSettings:  audio.DefaultAudioSettings(),
	}
	cfg.Formatter.BaseDir = "/music"

	layout := cfg.Layout()
	assert.Equal(t, "/music", layout.Formatter.BaseDir)
	assert.Equal(t, audio.DefaultAudioSettings(), layout.AudioSettings)
}
