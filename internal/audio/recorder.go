package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/notify"
)

const (
	// minRecordingSize rejects files ffmpeg created but never wrote audio to.
	minRecordingSize = 1024
	stopTimeout      = 5 * time.Second
	portTimeout      = 5 * time.Second
	// maxStderrTail bounds the ffmpeg output kept for error reports.
	maxStderrTail = 16 * 1024
)

// FFmpegRecorder is a RecordingEngine that runs one `pw-jack ffmpeg`
// process per segment, reading a JACK client whose inputs are linked to the
// capture device's source ports.
type FFmpegRecorder struct {
	device     CaptureDevice
	settings   AudioSettings
	sampleRate int
	logWriter  io.Writer

	graph       *PortGraph
	command     func(name string, args ...string) *exec.Cmd
	stopTimeout time.Duration

	events  *notify.Queue[EngineEvent]
	pending sync.WaitGroup

	mutex   sync.Mutex
	current *segment
	seq     int
	stopped bool
}

type segment struct {
	cmd         *exec.Cmd
	path        string
	client      string
	track       music.Track
	interrupted atomic.Bool
	killed      atomic.Bool
	done        chan struct{}
	stderr      tailBuffer
}

// NewFFmpegRecorder creates an engine for device. logWriter receives ffmpeg
// output; nil discards it.
func NewFFmpegRecorder(device CaptureDevice, settings AudioSettings, sampleRate int, logWriter io.Writer) *FFmpegRecorder {
	if logWriter == nil {
		logWriter = io.Discard
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}

	return &FFmpegRecorder{
		device:     device,
		settings:   settings,
		sampleRate: sampleRate,
		logWriter:  logWriter,
		graph:       NewPortGraph(),
		command:     exec.Command,
		stopTimeout: stopTimeout,
		events:      notify.NewQueue[EngineEvent](),
	}
}

// Events implements RecordingEngine.
func (r *FFmpegRecorder) Events() <-chan EngineEvent {
	return r.events.Out()
}

// StartNewRecording starts a segment for cfg.Track and then interrupts the
// previous segment, so the two overlap briefly rather than leaving a gap.
func (r *FFmpegRecorder) StartNewRecording(ctx context.Context, cfg RecordingConfiguration) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return ErrEngineStopped
	}

	r.seq++
	seg := &segment{
		path:   cfg.FileLocation,
		client: fmt.Sprintf("trackjack_%d_%d", os.Getpid(), r.seq),
		track:  cfg.Track,
		done:   make(chan struct{}),
	}

	args := r.ffmpegArgs(seg.client, cfg)
	slog.Debug("Starting ffmpeg", "command", strings.Join(args, " "))

	seg.cmd = r.command(args[0], args[1:]...)
	seg.cmd.Env = append(os.Environ(), "PIPEWIRE_QUANTUM=256/48000", "PIPEWIRE_LATENCY=256/48000")

	stdout, err := seg.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := seg.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := seg.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var output sync.WaitGroup
	output.Add(2)
	go r.readOutput(stdout, nil, &output)
	go r.readOutput(stderr, &seg.stderr, &output)

	r.pending.Add(1)
	go r.wait(seg, &output)
	go r.connectSources(seg)

	previous := r.current
	r.current = seg
	if previous != nil {
		r.interrupt(previous)
	}

	slog.Info("Recording segment started", "track", cfg.Track.String(), "file", cfg.FileLocation)
	return nil
}

// StopRecording interrupts the current segment. EngineStopped is emitted
// once every segment has been finalized.
func (r *FFmpegRecorder) StopRecording(ctx context.Context) {
	r.mutex.Lock()
	if r.stopped {
		r.mutex.Unlock()
		return
	}
	r.stopped = true
	current := r.current
	r.current = nil
	r.mutex.Unlock()

	if current != nil {
		r.interrupt(current)
	}

	go func() {
		r.pending.Wait()
		slog.Debug("ffmpeg recorder finished all recording activity")
		r.events.Push(EngineEvent{Kind: EngineStopped})
		r.events.Close()
	}()
}

// ffmpegArgs builds the capture command for one segment.
func (r *FFmpegRecorder) ffmpegArgs(client string, cfg RecordingConfiguration) []string {
	args := []string{
		"pw-jack",
		"ffmpeg",
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-loglevel", "warning",
		"-f", "jack",
		"-channels", strconv.Itoa(r.device.ChannelCount()),
		"-i", client,
		"-ar", strconv.Itoa(r.sampleRate),
		"-c:a", r.settings.Encoding.Codec(),
	}

	track := cfg.Track
	for _, tag := range [][2]string{
		{"title", track.Name},
		{"artist", track.Artist},
		{"album", track.Album},
		{"album_artist", track.AlbumArtist},
		{"track", ordinalTag(track.TrackNumber)},
		{"disc", ordinalTag(track.DiscNumber)},
	} {
		if tag[1] != "" {
			args = append(args, "-metadata", tag[0]+"="+tag[1])
		}
	}

	return append(args, "-f", r.settings.Container.Muxer(), "-y", cfg.FileLocation)
}

func ordinalTag(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// connectSources links the device's sources to the ffmpeg JACK client once
// its input ports appear.
func (r *FFmpegRecorder) connectSources(seg *segment) {
	for i, source := range r.device.EnabledSources() {
		if i >= 2 {
			break
		}
		destPort := fmt.Sprintf("%s:input_%d", seg.client, i+1)

		if err := r.graph.WaitForPort(destPort, portTimeout); err != nil {
			select {
			case <-seg.done:
				return
			default:
			}
			slog.Error("ffmpeg JACK port did not appear", "port", destPort, "error", err)
			continue
		}
		if err := r.graph.ConnectWithRetry(source, destPort); err != nil {
			slog.Error("Failed to connect source", "device", r.device.Name, "source", source, "dest", destPort, "error", err)
			continue
		}
		slog.Debug("Connected source", "device", r.device.Name, "source", source, "dest", destPort)
	}
}

// interrupt asks ffmpeg to finish the file and kills it if it lingers.
func (r *FFmpegRecorder) interrupt(seg *segment) {
	seg.interrupted.Store(true)

	if seg.cmd.Process != nil {
		if err := seg.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt ffmpeg, killing", "error", err)
			seg.killed.Store(true)
			seg.cmd.Process.Kill()
		}
	}

	go func() {
		select {
		case <-seg.done:
		case <-time.After(r.stopTimeout):
			slog.Warn("ffmpeg did not exit within timeout, force killing", "file", seg.path)
			seg.killed.Store(true)
			if seg.cmd.Process != nil {
				seg.cmd.Process.Kill()
			}
		}
	}()
}

// wait reaps one segment process and reports its outcome.
func (r *FFmpegRecorder) wait(seg *segment, output *sync.WaitGroup) {
	defer r.pending.Done()

	output.Wait()
	err := seg.cmd.Wait()
	close(seg.done)

	err = exitError(err, seg.interrupted.Load(), seg.killed.Load())
	if err == nil {
		err = validateOutputFile(seg.path)
	}
	if err != nil {
		slog.Error("Recording segment failed", "track", seg.track.String(), "file", seg.path, "error", err)
		slog.Debug("ffmpeg stderr", "output", seg.stderr.String())
	} else {
		slog.Debug("Recording segment finished", "track", seg.track.String(), "file", seg.path)
	}

	r.events.Push(EngineEvent{Kind: SegmentFinished, Path: seg.path, Err: err})
}

// readOutput forwards ffmpeg output line by line until EOF. The pipe is
// always drained to the end: a full pipe would block ffmpeg mid-capture.
func (r *FFmpegRecorder) readOutput(pipe io.ReadCloser, buffer *tailBuffer, output *sync.WaitGroup) {
	defer output.Done()

	scanner := bufio.NewScanner(pipe)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if buffer != nil {
			buffer.WriteLine(line)
		}
		fmt.Fprintln(r.logWriter, line)
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("Stopped parsing ffmpeg output", "error", err)
		io.Copy(io.Discard, pipe)
	}
}

// scanLines splits on "\n" and on the bare "\r" ffmpeg ends progress
// lines with.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last maxStderrTail bytes of output lines.
type tailBuffer struct {
	mutex sync.Mutex
	data  []byte
}

func (b *tailBuffer) WriteLine(line string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.data = append(b.data, line...)
	b.data = append(b.data, '\n')
	if over := len(b.data) - maxStderrTail; over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
}

func (b *tailBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return string(b.data)
}

// exitError maps an ffmpeg exit to a segment error. Exits caused by our own
// interrupt are clean; a kill or any other exit leaves the file without its
// trailer.
func exitError(err error, interrupted, killed bool) error {
	if killed {
		if err == nil {
			err = errors.New("killed")
		}
		return fmt.Errorf("ffmpeg had to be killed, recording is incomplete: %w", err)
	}
	if err == nil {
		if interrupted {
			return nil
		}
		return fmt.Errorf("ffmpeg exited before the segment was stopped")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && interrupted {
		// ffmpeg exits 255 after a graceful interrupt.
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil && exitErr.ProcessState.String() == "signal: interrupt" {
			return nil
		}
	}
	return fmt.Errorf("ffmpeg process failed: %w", err)
}

func validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() < minRecordingSize {
		return fmt.Errorf("recording failed: file too small (%d bytes)", info.Size())
	}
	return nil
}
