package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/trackjack/internal/library"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/notify"
	"github.com/audiolibrelab/trackjack/internal/session"
)

type fakeRecorder struct {
	mutex    sync.Mutex
	state    session.State
	startErr error
	stops    int
	hub      *notify.Hub[session.Event]
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{hub: notify.NewHub[session.Event]()}
}

func (f *fakeRecorder) StartRecording(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.state = session.Recording
	return nil
}

func (f *fakeRecorder) StopRecording(ctx context.Context) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.stops++
	if f.state == session.Recording {
		f.state = session.EndingRecording
	}
}

func (f *fakeRecorder) Status(ctx context.Context) (session.Status, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return session.Status{State: f.state, Device: "monitor"}, nil
}

func (f *fakeRecorder) LastError() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.startErr != nil {
		return f.startErr.Error()
	}
	return ""
}

func (f *fakeRecorder) Subscribe() (<-chan session.Event, func()) {
	return f.hub.Subscribe()
}

type fakeLibrary struct {
	entries []library.Entry
	err     error
}

func (f fakeLibrary) Entries() ([]library.Entry, error) {
	return f.entries, f.err
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	s := New(newFakeRecorder(), nil, nil)

	rec := serve(s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, StatusResponse{State: "not-recording", Device: "monitor"}, status)
}

func TestStartAndStopRecording(t *testing.T) {
	recorder := newFakeRecorder()
	s := New(recorder, nil, nil)

	rec := serve(s, http.MethodPost, "/api/recording/start")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]interface{}
	decode(t, rec, &started)
	assert.Equal(t, "recording", started["state"])
	assert.Equal(t, "Recording started", started["message"])

	rec = serve(s, http.MethodPost, "/api/recording/stop")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, recorder.stops)

	rec = serve(s, http.MethodGet, "/api/status")
	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, "ending", status.State)
	assert.True(t, status.Recording)
}

func TestStartRecordingFailure(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.startErr = errors.New("ffmpeg is required for recording")
	s := New(recorder, nil, nil)

	rec := serve(s, http.MethodPost, "/api/recording/start")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "ffmpeg is required")

	rec = serve(s, http.MethodGet, "/api/status")
	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, "ffmpeg is required for recording", status.LastError)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(newFakeRecorder(), nil, nil)

	rec := serve(s, http.MethodGet, "/api/recording/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLibrary(t *testing.T) {
	entries := []library.Entry{{
		Track: music.Track{ID: "1", Name: "Song"},
		Path:  "/music/1 - Song - Album.m4a",
		Size:  2048,
	}}
	s := New(newFakeRecorder(), fakeLibrary{entries: entries}, nil)

	rec := serve(s, http.MethodGet, "/api/library")
	require.Equal(t, http.StatusOK, rec.Code)

	var body LibraryResponse
	decode(t, rec, &body)
	require.Len(t, body.Recordings, 1)
	assert.Equal(t, entries[0].Path, body.Recordings[0].Path)
	assert.Equal(t, "Song", body.Recordings[0].Track.Name)
}

func TestLibraryWithoutLedger(t *testing.T) {
	s := New(newFakeRecorder(), nil, nil)

	rec := serve(s, http.MethodGet, "/api/library")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recordings": []}`, rec.Body.String())
}

func TestLibraryError(t *testing.T) {
	s := New(newFakeRecorder(), fakeLibrary{err: errors.New("corrupt ledger")}, nil)

	rec := serve(s, http.MethodGet, "/api/library")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("trackjack_recording 0\n"))
	})
	s := New(newFakeRecorder(), nil, metrics)

	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trackjack_recording")

	rec = serve(New(newFakeRecorder(), nil, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	recorder := newFakeRecorder()
	ts := httptest.NewServer(New(recorder, nil, nil).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return recorder.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	recorder.hub.Publish(session.StateChanged{
		From:   session.Recording,
		To:     session.EndingRecording,
		Reason: session.ReasonEngineFailure,
		Err:    errors.New("ffmpeg exited"),
	})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: state", lines[0])

	var msg EventMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &msg))
	assert.Equal(t, EventMessage{
		Type:   "state",
		From:   "recording",
		To:     "ending",
		Reason: "engine-failure",
		Error:  "ffmpeg exited",
	}, msg)

	cancel()
	require.Eventually(t, func() bool { return recorder.hub.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestNewEventMessage(t *testing.T) {
	track := music.Track{ID: "7", Name: "Song"}

	msg := NewEventMessage(session.RecordingFinalized{Track: track, Path: "/music/Song.m4a"})
	assert.Equal(t, "recording-finalized", msg.Type)
	require.NotNil(t, msg.Track)
	assert.Equal(t, "Song", msg.Track.Name)
	assert.Equal(t, "/music/Song.m4a", msg.Path)
	assert.Empty(t, msg.Error)

	msg = NewEventMessage(session.SegmentFailed{Track: track, Err: errors.New("boom")})
	assert.Equal(t, "segment-failed", msg.Type)
	assert.Equal(t, "boom", msg.Error)
}
