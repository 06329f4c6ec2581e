package music

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// MPD drives a Music Player Daemon. Every command opens a short-lived
// connection, since MPD drops idle clients and a long-lived command
// connection would conflict with the idle watcher.
type MPD struct {
	network  string
	address  string
	password string
}

// NewMPD creates an MPD application for the given endpoint. network is
// "tcp" or "unix".
func NewMPD(network, address, password string) *MPD {
	if network == "" {
		network = "tcp"
	}
	return &MPD{network: network, address: address, password: password}
}

// Ping checks that the daemon is reachable.
func (m *MPD) Ping(ctx context.Context) error {
	return m.do(ctx, func(c *mpd.Client) error { return c.Ping() })
}

// CurrentTrack returns the song MPD is playing or paused on. A stopped
// player has no current track: MPD stops when it runs off the end of the
// queue, which is how a recording run learns the queue is exhausted.
func (m *MPD) CurrentTrack(ctx context.Context) (*Track, error) {
	var track *Track
	err := m.do(ctx, func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		if playerStateFromAttrs(status) == PlayerStopped {
			return nil
		}

		song, err := c.CurrentSong()
		if err != nil {
			return fmt.Errorf("failed to read current song: %w", err)
		}
		track = trackFromAttrs(song)
		return nil
	})
	return track, err
}

// PlayerState returns the transport state.
func (m *MPD) PlayerState(ctx context.Context) (PlayerState, error) {
	state := PlayerStopped
	err := m.do(ctx, func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		state = playerStateFromAttrs(status)
		return nil
	})
	return state, err
}

// PlayerPosition returns the elapsed time of the current song.
func (m *MPD) PlayerPosition(ctx context.Context) (time.Duration, error) {
	var position time.Duration
	err := m.do(ctx, func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		position = parseSeconds(status["elapsed"])
		return nil
	})
	return position, err
}

// SetPlayerPosition seeks within the current song.
func (m *MPD) SetPlayerPosition(ctx context.Context, position time.Duration) error {
	return m.do(ctx, func(c *mpd.Client) error {
		if err := c.SeekCur(position, false); err != nil {
			return fmt.Errorf("failed to seek to %s: %w", position, err)
		}
		return nil
	})
}

// Play resumes playback, starting the queue if the player is stopped.
func (m *MPD) Play(ctx context.Context) error {
	return m.do(ctx, func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		if playerStateFromAttrs(status) == PlayerStopped {
			return c.Play(-1)
		}
		return c.Pause(false)
	})
}

// Pause pauses playback.
func (m *MPD) Pause(ctx context.Context) error {
	return m.do(ctx, func(c *mpd.Client) error { return c.Pause(true) })
}

// SetRepeatEnabled toggles queue repeat.
func (m *MPD) SetRepeatEnabled(ctx context.Context, enabled bool) error {
	return m.do(ctx, func(c *mpd.Client) error { return c.Repeat(enabled) })
}

// SetShuffleEnabled toggles random playback.
func (m *MPD) SetShuffleEnabled(ctx context.Context, enabled bool) error {
	return m.do(ctx, func(c *mpd.Client) error { return c.Random(enabled) })
}

// WatchTrackIDs follows the "player" idle subsystem and publishes the
// current song ID whenever it differs from the last one published. The
// current ID is always published first.
func (m *MPD) WatchTrackIDs(ctx context.Context) (<-chan TrackID, error) {
	w, err := mpd.NewWatcher(m.network, m.address, m.password, "player")
	if err != nil {
		return nil, fmt.Errorf("failed to watch MPD at %s: %w", m.address, err)
	}

	// Watcher errors do not stop the event channel; they are logged only.
	go func() {
		for err := range w.Error {
			slog.Debug("MPD watcher error", "address", m.address, "error", err)
		}
	}()

	out := make(chan TrackID)
	go func() {
		defer close(out)
		defer func() {
			go func() {
				for range w.Event {
				}
			}()
			w.Close()
		}()

		followTrackIDs(ctx, m.currentTrackID, w.Event, out)
	}()

	return out, nil
}

// followTrackIDs publishes the current track ID once, then again after each
// idle event that changed it. It returns when ctx ends or changes closes.
func followTrackIDs(ctx context.Context, current func(context.Context) (TrackID, error), changes <-chan string, out chan<- TrackID) {
	var last TrackID
	published := false
	publish := func() bool {
		id, err := current(ctx)
		if err != nil {
			slog.Warn("Failed to read current MPD song", "error", err)
			return ctx.Err() == nil
		}
		if published && id == last {
			return true
		}
		last, published = id, true
		select {
		case out <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !publish() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case subsystem, ok := <-changes:
			if !ok {
				slog.Warn("MPD watcher closed")
				return
			}
			slog.Debug("MPD idle event", "subsystem", subsystem)
			if !publish() {
				return
			}
		}
	}
}

func (m *MPD) currentTrackID(ctx context.Context) (TrackID, error) {
	id := NoTrack
	err := m.do(ctx, func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		if playerStateFromAttrs(status) != PlayerStopped {
			id = TrackID(status["songid"])
		}
		return nil
	})
	return id, err
}

// do runs fn on a fresh connection.
func (m *MPD) do(ctx context.Context, fn func(c *mpd.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var c *mpd.Client
	var err error
	if m.password != "" {
		c, err = mpd.DialAuthenticated(m.network, m.address, m.password)
	} else {
		c, err = mpd.Dial(m.network, m.address)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to MPD at %s: %w", m.address, err)
	}
	defer c.Close()

	return fn(c)
}

func playerStateFromAttrs(status mpd.Attrs) PlayerState {
	switch status["state"] {
	case "play":
		return PlayerPlaying
	case "pause":
		return PlayerPaused
	default:
		return PlayerStopped
	}
}

// trackFromAttrs converts a "currentsong" response. It returns nil for an
// empty response.
func trackFromAttrs(song mpd.Attrs) *Track {
	id := song["Id"]
	if id == "" {
		return nil
	}

	name := song["Title"]
	if name == "" {
		base := path.Base(song["file"])
		name = strings.TrimSuffix(base, path.Ext(base))
	}

	albumArtist := song["AlbumArtist"]
	if albumArtist == "" {
		albumArtist = song["Artist"]
	}

	duration := parseSeconds(song["duration"])
	if duration == 0 {
		duration = parseSeconds(song["Time"])
	}

	return &Track{
		ID:          TrackID(id),
		Name:        name,
		Artist:      song["Artist"],
		Album:       song["Album"],
		AlbumArtist: albumArtist,
		TrackNumber: parseOrdinal(song["Track"]),
		DiscNumber:  parseOrdinal(song["Disc"]),
		Duration:    duration,
	}
}

// parseOrdinal reads "3" or "3/12" as 3.
func parseOrdinal(s string) int {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(math.Round(secs * float64(time.Second)))
}
