package play

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePlayer(installed ...string) (*Player, *[]string) {
	var ran []string
	p := &Player{
		lookPath: func(file string) (string, error) {
			for _, name := range installed {
				if name == file {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		},
		run: func(ctx context.Context, name string, args ...string) error {
			ran = append(append(ran, name), args...)
			return nil
		},
	}
	return p, &ran
}

func writeRecording(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
	return path
}

func TestPlayPrefersFirstInstalledPlayer(t *testing.T) {
	path := writeRecording(t, "1 - Song - Album.m4a")
	p, ran := fakePlayer("vlc", "ffplay")

	require.NoError(t, p.Play(context.Background(), path))
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", path}, *ran)
}

func TestPlayMissingFile(t *testing.T) {
	p, ran := fakePlayer("mpv")

	err := p.Play(context.Background(), filepath.Join(t.TempDir(), "missing.m4a"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, *ran)
}

func TestPlayWithoutPlayer(t *testing.T) {
	path := writeRecording(t, "song.flac")
	p, _ := fakePlayer()

	assert.ErrorIs(t, p.Play(context.Background(), path), ErrNoPlayer)
}

func TestAplayOnlyPlaysWAV(t *testing.T) {
	p, ran := fakePlayer("aplay")

	assert.Error(t, p.Play(context.Background(), writeRecording(t, "song.m4a")))
	assert.Empty(t, *ran)

	wav := writeRecording(t, "song.WAV")
	require.NoError(t, p.Play(context.Background(), wav))
	assert.Equal(t, []string{"aplay", wav}, *ran)
}

func TestPlaybackFailure(t *testing.T) {
	path := writeRecording(t, "song.m4a")
	p, _ := fakePlayer("mpv")
	p.run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("exit status 2")
	}

	assert.ErrorContains(t, p.Play(context.Background(), path), "playback failed with mpv")
}
