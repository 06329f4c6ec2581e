package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/music"
)

// ErrNoBaseDirectory is returned by a formatter with no output directory.
var ErrNoBaseDirectory = errors.New("no output directory configured")

// FilePathFormatter decides where a finished recording lives:
//
//	{BaseDir}/{trackNumber} - {name} - {album}.{ext}
//
// or, with GroupByAlbum,
//
//	{BaseDir}/{album artist}/{album}/{trackNumber} - {name} - {album}.{ext}
type FilePathFormatter struct {
	BaseDir      string `mapstructure:"directory" yaml:"directory"`
	GroupByAlbum bool   `mapstructure:"group_by_album" yaml:"group_by_album"`
}

// Path returns the destination for track recorded with settings. It only
// depends on its arguments and the formatter's fields.
func (f FilePathFormatter) Path(track music.Track, settings audio.AudioSettings) (string, error) {
	if f.BaseDir == "" {
		return "", ErrNoBaseDirectory
	}

	dir := f.BaseDir
	if f.GroupByAlbum {
		artist := track.AlbumArtist
		if artist == "" {
			artist = track.Artist
		}
		dir = filepath.Join(dir, directoryName(artist, "Unknown Artist"), directoryName(track.Album, "Unknown Album"))
	}

	name := fmt.Sprintf("%d - %s - %s.%s",
		track.TrackNumber,
		cleanComponent(track.Name),
		cleanComponent(track.Album),
		settings.Container.FileExtension(),
	)
	return filepath.Join(dir, name), nil
}

var separatorReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// cleanComponent keeps a tag value from introducing path separators.
func cleanComponent(s string) string {
	return strings.TrimSpace(separatorReplacer.Replace(s))
}

// directoryName cleans a tag used as a whole path element.
func directoryName(s, fallback string) string {
	s = cleanComponent(s)
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}
