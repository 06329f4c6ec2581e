package music

import (
	"context"
	"fmt"
	"time"
)

// TrackID identifies one play of a song. The empty ID means the player has
// no current track.
type TrackID string

// NoTrack is emitted on a track-ID stream when the play queue is exhausted.
const NoTrack TrackID = ""

// Track describes a song reported by the music application. Two tracks are
// the same track when their IDs match; use Equal rather than ==.
type Track struct {
	ID          TrackID       `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Artist      string        `json:"artist" yaml:"artist"`
	Album       string        `json:"album" yaml:"album"`
	AlbumArtist string        `json:"album_artist" yaml:"album_artist"`
	TrackNumber int           `json:"track_number" yaml:"track_number"`
	DiscNumber  int           `json:"disc_number" yaml:"disc_number"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Equal reports whether t and other are the same play of a song.
func (t Track) Equal(other Track) bool {
	return t.ID == other.ID
}

func (t Track) String() string {
	return fmt.Sprintf("(%s) %q by %s", t.ID, t.Name, t.Artist)
}

// PlayerState is the transport state of the music application.
type PlayerState string

const (
	PlayerStopped PlayerState = "stopped"
	PlayerPlaying PlayerState = "playing"
	PlayerPaused  PlayerState = "paused"
)

// Application is the music player a recording session drives.
//
// CurrentTrack returns nil and no error when nothing is loaded. WatchTrackIDs
// pushes the current track ID every time it changes until ctx is cancelled,
// after which the channel is closed; NoTrack signals the end of the queue.
type Application interface {
	CurrentTrack(ctx context.Context) (*Track, error)
	PlayerState(ctx context.Context) (PlayerState, error)
	PlayerPosition(ctx context.Context) (time.Duration, error)
	SetPlayerPosition(ctx context.Context, position time.Duration) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SetRepeatEnabled(ctx context.Context, enabled bool) error
	SetShuffleEnabled(ctx context.Context, enabled bool) error
	WatchTrackIDs(ctx context.Context) (<-chan TrackID, error)
}
