package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoPlayer is returned when none of the supported audio players is
// installed.
var ErrNoPlayer = errors.New("no audio player found")

// players lists supported audio players in order of preference.
var players = []string{"mpv", "ffplay", "vlc", "aplay"}

// Player plays recordings through an external audio player.
type Player struct {
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

func New() *Player {
	return &Player{
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
	}
}

// Play blocks until path has been played or ctx is cancelled.
func (p *Player) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return err
	}
	args, err := playerArgs(player, path)
	if err != nil {
		return err
	}

	slog.Info("Playing", "file", path, "player", player)
	if err := p.run(ctx, player, args...); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("%w (tried: %s)", ErrNoPlayer, strings.Join(players, ", "))
}

func playerArgs(player, path string) ([]string, error) {
	switch player {
	case "mpv":
		return []string{"--no-video", path}, nil
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", path}, nil
	case "vlc":
		return []string{"--play-and-exit", "--intf", "dummy", path}, nil
	case "aplay":
		// aplay only reads WAV
		if !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil, fmt.Errorf("aplay cannot play %s files", filepath.Ext(path))
		}
		return []string{path}, nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}
