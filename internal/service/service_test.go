package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/config"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/session"
)

const waitTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	trackA = music.Track{ID: "A", Name: "Alpha", Album: "Demo", Artist: "Band", TrackNumber: 1}
	trackB = music.Track{ID: "B", Name: "Beta", Album: "Demo", Artist: "Band", TrackNumber: 2}
)

type fakePlayer struct {
	mutex sync.Mutex
	track *music.Track
	ids   chan music.TrackID
}

func (p *fakePlayer) setTrack(track *music.Track) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.track = track
}

func (p *fakePlayer) CurrentTrack(ctx context.Context) (*music.Track, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.track == nil {
		return nil, nil
	}
	track := *p.track
	return &track, nil
}

func (p *fakePlayer) PlayerState(ctx context.Context) (music.PlayerState, error) {
	return music.PlayerPlaying, nil
}

func (p *fakePlayer) PlayerPosition(ctx context.Context) (time.Duration, error) { return 0, nil }

func (p *fakePlayer) SetPlayerPosition(ctx context.Context, position time.Duration) error {
	return nil
}

func (p *fakePlayer) Play(ctx context.Context) error { return nil }
func (p *fakePlayer) Pause(ctx context.Context) error { return nil }

func (p *fakePlayer) SetRepeatEnabled(ctx context.Context, enabled bool) error { return nil }
func (p *fakePlayer) SetShuffleEnabled(ctx context.Context, enabled bool) error { return nil }

func (p *fakePlayer) WatchTrackIDs(ctx context.Context) (<-chan music.TrackID, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.ids = make(chan music.TrackID)
	return p.ids, nil
}

func (p *fakePlayer) emit(t *testing.T, id music.TrackID) {
	t.Helper()
	p.mutex.Lock()
	ids := p.ids
	p.mutex.Unlock()
	require.NotNil(t, ids, "no track subscription")

	select {
	case ids <- id:
	case <-time.After(waitTimeout):
		t.Fatalf("track ID %q was not consumed", id)
	}
}

// fileEngine writes a small file per segment and reports it finished when
// the next segment starts or the engine stops.
type fileEngine struct {
	mutex   sync.Mutex
	current string
	stopped bool
	events  chan audio.EngineEvent
}

func (e *fileEngine) StartNewRecording(ctx context.Context, cfg audio.RecordingConfiguration) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if err := os.WriteFile(cfg.FileLocation, []byte(cfg.Track.Name), 0644); err != nil {
		return err
	}
	if e.current != "" {
		e.events <- audio.EngineEvent{Kind: audio.SegmentFinished, Path: e.current}
	}
	e.current = cfg.FileLocation
	return nil
}

func (e *fileEngine) StopRecording(ctx context.Context) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	if e.current != "" {
		e.events <- audio.EngineEvent{Kind: audio.SegmentFinished, Path: e.current}
	}
	e.events <- audio.EngineEvent{Kind: audio.EngineStopped}
	close(e.events)
}

func (e *fileEngine) Events() <-chan audio.EngineEvent {
	return e.events
}

type fakeBackend struct {
	sources []string
	engines int
}

func (b *fakeBackend) NewEngine(ctx context.Context, device audio.CaptureDevice, settings audio.AudioSettings) (audio.RecordingEngine, error) {
	b.engines++
	return &fileEngine{events: make(chan audio.EngineEvent, 16)}, nil
}

func (b *fakeBackend) ListSources() ([]string, error) {
	return b.sources, nil
}

func (b *fakeBackend) ValidateSource(source string) error {
	for _, s := range b.sources {
		if s == source {
			return nil
		}
	}
	return errors.New("port not found")
}

func (b *fakeBackend) GetType() audio.BackendType {
	return audio.BackendTypePipeWire
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	cfg.Recording.TempDirectory = t.TempDir()
	cfg.Recording.Sources = []string{"system:monitor_FL", "system:monitor_FR"}
	return cfg
}

func newTestService(t *testing.T, player *fakePlayer, backend *fakeBackend) *TrackJackService {
	t.Helper()
	s, err := newService(testConfig(t), player, backend)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRecordRunFilesTracks(t *testing.T) {
	player := &fakePlayer{track: &trackA}
	backend := &fakeBackend{}
	s := newTestService(t, player, backend)

	events, cancel := s.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.NoError(t, s.StartRecording(ctx))
	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Recording, status.State)
	assert.Equal(t, 1, backend.engines)

	player.setTrack(&trackB)
	player.emit(t, trackB.ID)
	s.StopRecording(ctx)

	var filed []string
	stopped := false
	deadline := time.After(waitTimeout)
	for len(filed) < 2 || !stopped {
		select {
		case e := <-events:
			switch e := e.(type) {
			case session.RecordingFinalized:
				require.NoError(t, e.Err)
				filed = append(filed, e.Path)
			case session.StateChanged:
				if e.To == session.NotRecording {
					assert.Equal(t, session.ReasonRequested, e.Reason)
					stopped = true
				}
			}
		case <-deadline:
			t.Fatalf("run did not finish: filed %v, stopped %t", filed, stopped)
		}
	}

	dir := s.GetConfig().Output.Directory
	assert.Equal(t, []string{
		filepath.Join(dir, "1 - Alpha - Demo.m4a"),
		filepath.Join(dir, "2 - Beta - Demo.m4a"),
	}, filed)
	for _, path := range filed {
		assert.FileExists(t, path)
	}

	entries, err := s.Library().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Alpha", entries[0].Track.Name)
	assert.Equal(t, int64(len("Alpha")), entries[0].Size)
	assert.Empty(t, s.LastError())

	s.Close()

	rec := httptest.NewRecorder()
	s.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "trackjack_runs_started_total 1")
	assert.Contains(t, body, `trackjack_runs_stopped_total{reason="requested"} 1`)
	assert.Contains(t, body, "trackjack_segments_started_total 2")
	assert.Contains(t, body, `trackjack_recordings_processed_total{result="ok"} 2`)
}

func TestStartRecordingWithoutTrack(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestService(t, &fakePlayer{}, backend)

	ctx := context.Background()
	require.NoError(t, s.StartRecording(ctx))

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.NotRecording, status.State)
	assert.Zero(t, backend.engines)
}

func TestSources(t *testing.T) {
	backend := &fakeBackend{sources: []string{"system:monitor_FL"}}
	s := newTestService(t, &fakePlayer{}, backend)

	sources, err := s.ListSources()
	require.NoError(t, err)
	assert.Equal(t, []string{"system:monitor_FL"}, sources)

	assert.Equal(t, map[string]string{
		"system:monitor_FL": "available",
		"system:monitor_FR": "missing",
	}, s.GetSourceStatus())
}

func TestInvalidAudioSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recording.Encoding = "mp3"

	_, err := newService(cfg, &fakePlayer{}, &fakeBackend{})
	assert.ErrorContains(t, err, "invalid audio settings")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestService(t, &fakePlayer{track: &trackA}, &fakeBackend{})

	require.NoError(t, s.StartRecording(context.Background()))
	s.Close()
	s.Close()

	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, session.ErrClosed)
}
