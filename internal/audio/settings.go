package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/trackjack/internal/music"
)

// Encoding is the codec audio data is compressed with.
type Encoding string

const (
	EncodingALAC Encoding = "alac"
	EncodingFLAC Encoding = "flac"
	EncodingPCM  Encoding = "pcm"
)

// Codec returns the ffmpeg encoder name.
func (e Encoding) Codec() string {
	switch e {
	case EncodingALAC:
		return "alac"
	case EncodingFLAC:
		return "flac"
	case EncodingPCM:
		return "pcm_s16le"
	default:
		return string(e)
	}
}

// Container is the file format recordings are written in.
type Container string

const (
	ContainerM4A  Container = "m4a"
	ContainerFLAC Container = "flac"
	ContainerWAV  Container = "wav"
	ContainerMKV  Container = "mkv"
)

// FileExtension returns the extension, without the dot, for files in c.
func (c Container) FileExtension() string {
	return string(c)
}

// Muxer returns the ffmpeg output format name. Temporary recording files
// carry no extension, so the format is always passed explicitly.
func (c Container) Muxer() string {
	switch c {
	case ContainerM4A:
		return "ipod"
	case ContainerMKV:
		return "matroska"
	default:
		return string(c)
	}
}

var supportedEncodings = map[Container][]Encoding{
	ContainerM4A:  {EncodingALAC},
	ContainerFLAC: {EncodingFLAC},
	ContainerWAV:  {EncodingPCM},
	ContainerMKV:  {EncodingALAC, EncodingFLAC, EncodingPCM},
}

// AudioSettings pairs an encoding with a container.
type AudioSettings struct {
	Encoding  Encoding  `mapstructure:"encoding" yaml:"encoding"`
	Container Container `mapstructure:"container" yaml:"container"`
}

// DefaultAudioSettings records lossless ALAC in an M4A container.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{Encoding: EncodingALAC, Container: ContainerM4A}
}

// ParseAudioSettings builds settings from configuration strings.
func ParseAudioSettings(encoding, container string) (AudioSettings, error) {
	s := AudioSettings{
		Encoding:  Encoding(strings.ToLower(strings.TrimSpace(encoding))),
		Container: Container(strings.ToLower(strings.TrimSpace(container))),
	}
	if err := s.Validate(); err != nil {
		return AudioSettings{}, err
	}
	return s, nil
}

// Validate rejects unknown containers and encodings a container cannot hold.
func (s AudioSettings) Validate() error {
	encodings, ok := supportedEncodings[s.Container]
	if !ok {
		return fmt.Errorf("unsupported container: %q", s.Container)
	}
	for _, e := range encodings {
		if e == s.Encoding {
			return nil
		}
	}
	return fmt.Errorf("container %q cannot hold %q audio", s.Container, s.Encoding)
}

func (s AudioSettings) String() string {
	return fmt.Sprintf("%s/%s", s.Encoding, s.Container)
}

// CaptureDevice is a named set of PipeWire/JACK source ports captured
// together. Mono devices have one source, stereo devices two.
type CaptureDevice struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	Sources []string `mapstructure:"sources" yaml:"sources"`
}

// EnabledSources returns the sources that are neither empty nor "disabled".
func (d CaptureDevice) EnabledSources() []string {
	var enabled []string
	for _, source := range d.Sources {
		source = strings.TrimSpace(source)
		if source != "" && source != "disabled" {
			enabled = append(enabled, source)
		}
	}
	return enabled
}

// Available reports whether the device has anything to capture.
func (d CaptureDevice) Available() bool {
	return len(d.EnabledSources()) > 0
}

// ChannelCount is 1 for mono devices and 2 for stereo ones.
func (d CaptureDevice) ChannelCount() int {
	n := len(d.EnabledSources())
	if n == 0 {
		return 1
	}
	if n > 2 {
		return 2
	}
	return n
}

// RecordingConfiguration tells an engine where to write one segment and
// which track it holds.
type RecordingConfiguration struct {
	FileLocation string
	Track        music.Track
}
