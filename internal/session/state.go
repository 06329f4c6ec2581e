package session

import (
	"fmt"

	"github.com/audiolibrelab/trackjack/internal/music"
)

// State is the recording status of a Coordinator.
type State int

const (
	NotRecording State = iota
	// StartingRecording is reserved for engines that start asynchronously.
	StartingRecording
	Recording
	EndingRecording
)

func (s State) String() string {
	switch s {
	case NotRecording:
		return "not-recording"
	case StartingRecording:
		return "starting"
	case Recording:
		return "recording"
	case EndingRecording:
		return "ending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsRecording reports whether a run is in progress.
func (s State) IsRecording() bool {
	return s != NotRecording
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason tells why a run ended.
type StopReason int

const (
	ReasonNone StopReason = iota
	// ReasonRequested: StopRecording or Close was called.
	ReasonRequested
	// ReasonQueueExhausted: the player has nothing left to play.
	ReasonQueueExhausted
	// ReasonEngineFailure: a segment could not be started or failed.
	ReasonEngineFailure
	// ReasonPlayerFailure: the player could not be queried or its change
	// stream ended.
	ReasonPlayerFailure
)

func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonRequested:
		return "requested"
	case ReasonQueueExhausted:
		return "queue-exhausted"
	case ReasonEngineFailure:
		return "engine-failure"
	case ReasonPlayerFailure:
		return "player-failure"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// MarshalText lets reasons appear by name in JSON.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Status is a snapshot of a Coordinator.
type Status struct {
	State    State        `json:"state"`
	Device   string       `json:"device,omitempty"`
	Track    *music.Track `json:"track,omitempty"`
	Segments int          `json:"segments"`
	Settings string       `json:"settings,omitempty"`
}

func newStatus(state State, r *run) Status {
	status := Status{State: state}
	if r == nil {
		return status
	}
	status.Device = r.device.Name
	status.Segments = r.segmentCount
	status.Settings = r.config.AudioSettings.String()
	if r.current != nil {
		track := *r.current
		status.Track = &track
	}
	return status
}
