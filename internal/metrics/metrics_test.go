package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/session"
)

func TestObserveRun(t *testing.T) {
	m := New()
	track := music.Track{ID: "1", Name: "Song"}

	events := make(chan session.Event, 8)
	events <- session.StateChanged{From: session.NotRecording, To: session.Recording}
	events <- session.SegmentStarted{Track: track, Path: "/tmp/a.m4a"}
	events <- session.SegmentStarted{Track: track, Path: "/tmp/b.m4a"}
	events <- session.RecordingFinalized{Track: track, Path: "/music/a.m4a"}
	events <- session.SegmentFailed{Track: track, Path: "/tmp/b.m4a", Err: errors.New("exit 1")}
	events <- session.StateChanged{From: session.Recording, To: session.EndingRecording, Reason: session.ReasonEngineFailure}
	close(events)

	m.Consume(events)

	if got := testutil.ToFloat64(m.runsStarted); got != 1 {
		t.Errorf("runs started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.segmentsStarted); got != 2 {
		t.Errorf("segments started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.segmentsFailed); got != 1 {
		t.Errorf("segments failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.recordingsFiled.WithLabelValues("ok")); got != 1 {
		t.Errorf("recordings filed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.recording); got != 1 {
		t.Errorf("recording gauge = %v, want 1 while ending", got)
	}

	m.Observe(session.StateChanged{From: session.EndingRecording, To: session.NotRecording, Reason: session.ReasonEngineFailure})
	if got := testutil.ToFloat64(m.recording); got != 0 {
		t.Errorf("recording gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.runsStopped.WithLabelValues("engine-failure")); got != 1 {
		t.Errorf("runs stopped = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(session.SegmentStarted{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "trackjack_segments_started_total 1") {
		t.Errorf("Expected segment counter in output, got:\n%s", body)
	}
}
