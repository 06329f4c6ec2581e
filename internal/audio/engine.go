package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngineStopped is returned when a segment is requested from an engine
// that has already been told to stop.
var ErrEngineStopped = errors.New("recording engine stopped")

// EngineEventKind tells SegmentFinished and EngineStopped events apart.
type EngineEventKind int

const (
	// SegmentFinished reports that a segment file is complete, or failed
	// when Err is set.
	SegmentFinished EngineEventKind = iota + 1
	// EngineStopped reports that StopRecording has completed and every
	// segment has been finalized.
	EngineStopped
)

func (k EngineEventKind) String() string {
	switch k {
	case SegmentFinished:
		return "segment-finished"
	case EngineStopped:
		return "engine-stopped"
	default:
		return fmt.Sprintf("EngineEventKind(%d)", int(k))
	}
}

// EngineEvent is one asynchronous completion message from an engine.
type EngineEvent struct {
	Kind EngineEventKind
	Path string
	Err  error
}

// RecordingEngine captures audio into one file per segment.
//
// StartNewRecording must be capturing by the time it returns; calling it
// while a segment is in progress finalizes that segment and starts the next.
// StopRecording ends the current segment. Events delivers exactly one
// SegmentFinished per started segment and, after all of them, exactly one
// EngineStopped, then the channel is closed.
type RecordingEngine interface {
	StartNewRecording(ctx context.Context, cfg RecordingConfiguration) error
	StopRecording(ctx context.Context)
	Events() <-chan EngineEvent
}
