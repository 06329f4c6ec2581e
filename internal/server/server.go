package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/audiolibrelab/trackjack/internal/library"
	"github.com/audiolibrelab/trackjack/internal/music"
	"github.com/audiolibrelab/trackjack/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Recorder is the recording control the server exposes.
type Recorder interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context)
	Status(ctx context.Context) (session.Status, error)
	Subscribe() (<-chan session.Event, func())
	LastError() string
}

// Library lists finalized recordings.
type Library interface {
	Entries() ([]library.Entry, error)
}

// Server is the HTTP control surface for a recorder.
type Server struct {
	recorder Recorder
	library  Library
	metrics  http.Handler
	router   chi.Router
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	State     string       `json:"state"`
	Recording bool         `json:"recording"`
	Device    string       `json:"device,omitempty"`
	Track     *music.Track `json:"track,omitempty"`
	Segments  int          `json:"segments"`
	Settings  string       `json:"settings,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// LibraryResponse represents the JSON response for the library endpoint
type LibraryResponse struct {
	Recordings []library.Entry `json:"recordings"`
}

// EventMessage is one server-sent event payload.
type EventMessage struct {
	Type   string       `json:"type"`
	From   string       `json:"from,omitempty"`
	To     string       `json:"to,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Track  *music.Track `json:"track,omitempty"`
	Path   string       `json:"path,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// New creates a server. lib and metrics may be nil.
func New(recorder Recorder, lib Library, metrics http.Handler) *Server {
	s := &Server{
		recorder: recorder,
		library:  lib,
		metrics:  metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/recording/start", s.handleStartRecording)
		r.Post("/recording/stop", s.handleStopRecording)
		r.Get("/events", s.handleEvents)
		r.Get("/library", s.handleLibrary)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	s.router = r
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	_, port, _ := net.SplitHostPort(listener.Addr().String())
	slog.Info("Starting TrackJack control server",
		"address", listener.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port))

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(listener)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down control server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleStatus returns the current recording state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.recorder.Status(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Failed to get status: %v", err),
			"operation", "status")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		State:     status.State.String(),
		Recording: status.State.IsRecording(),
		Device:    status.Device,
		Track:     status.Track,
		Segments:  status.Segments,
		Settings:  status.Settings,
		LastError: s.recorder.LastError(),
	})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.recorder.StartRecording(r.Context()); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start_recording")
		return
	}

	status, err := s.recorder.Status(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Failed to get status: %v", err),
			"operation", "start_recording")
		return
	}

	message := "Recording started"
	if !status.State.IsRecording() {
		message = "Nothing to record"
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": message,
		"state":   status.State.String(),
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	s.recorder.StopRecording(r.Context())

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Recording stopping",
	})
}

// handleEvents streams coordinator events as server-sent events until the
// client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	events, cancel := s.recorder.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Debug("Event stream cannot flush", "error", err)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(NewEventMessage(e))
			if err != nil {
				slog.Error("Failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", session.EventName(e), data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusOK, LibraryResponse{Recordings: []library.Entry{}})
		return
	}

	entries, err := s.library.Entries()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to read library: %v", err),
			"operation", "library")
		return
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	writeJSON(w, http.StatusOK, LibraryResponse{Recordings: entries})
}

// NewEventMessage converts a coordinator event to its wire form.
func NewEventMessage(e session.Event) EventMessage {
	msg := EventMessage{Type: session.EventName(e)}

	var err error
	switch e := e.(type) {
	case session.StateChanged:
		msg.From, msg.To = e.From.String(), e.To.String()
		msg.Reason = e.Reason.String()
		err = e.Err
	case session.SegmentStarted:
		msg.Track, msg.Path = &e.Track, e.Path
	case session.SegmentFailed:
		msg.Track, msg.Path = &e.Track, e.Path
		err = e.Err
	case session.RecordingFinalized:
		msg.Track, msg.Path = &e.Track, e.Path
		err = e.Err
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// sendErrorResponse sends a standardized error response and logs the error
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

// getLocalIP returns the local IP address for network access
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
