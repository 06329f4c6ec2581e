package session

import "github.com/audiolibrelab/trackjack/internal/music"

// Event is published to subscribers of a Coordinator. It is one of
// StateChanged, SegmentStarted, SegmentFailed or RecordingFinalized.
type Event interface {
	event()
}

// StateChanged is published for every state transition. From and To always
// differ. Reason and Err are set on the transitions that end a run.
type StateChanged struct {
	From   State
	To     State
	Reason StopReason
	Err    error
}

// SegmentStarted is published when the engine starts capturing a track.
type SegmentStarted struct {
	Track music.Track
	Path  string
}

// SegmentFailed is published when a segment could not be started or the
// engine reported it as failed.
type SegmentFailed struct {
	Track music.Track
	Path  string
	Err   error
}

// RecordingFinalized is published when the processor is done with a
// segment. Path is its place in the library unless Err is set.
type RecordingFinalized struct {
	Track music.Track
	Path  string
	Err   error
}

func (StateChanged) event()       {}
func (SegmentStarted) event()     {}
func (SegmentFailed) event()      {}
func (RecordingFinalized) event() {}

// EventName returns a short name for e, used for logs and event streams.
func EventName(e Event) string {
	switch e.(type) {
	case StateChanged:
		return "state"
	case SegmentStarted:
		return "segment-started"
	case SegmentFailed:
		return "segment-failed"
	case RecordingFinalized:
		return "recording-finalized"
	default:
		return "unknown"
	}
}
