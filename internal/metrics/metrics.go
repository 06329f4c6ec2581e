package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/trackjack/internal/session"
)

// Metrics holds Prometheus counters and gauges for recording sessions.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted      prometheus.Counter
	runsStopped      *prometheus.CounterVec
	segmentsStarted  prometheus.Counter
	segmentsFailed   prometheus.Counter
	recordingsFiled  *prometheus.CounterVec
	recording        prometheus.Gauge
	stateTransitions *prometheus.CounterVec
}

// New creates and registers the session metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackjack_runs_started_total",
			Help: "Total number of recording runs started",
		}),
		runsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackjack_runs_stopped_total",
			Help: "Total number of recording runs that ended, by reason",
		}, []string{"reason"}),
		segmentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackjack_segments_started_total",
			Help: "Total number of track segments the engine started",
		}),
		segmentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackjack_segments_failed_total",
			Help: "Total number of track segments that failed",
		}),
		recordingsFiled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackjack_recordings_processed_total",
			Help: "Total number of recordings handled by the library processor, by result",
		}, []string{"result"}),
		recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackjack_recording",
			Help: "1 while a recording run is in progress",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackjack_state_transitions_total",
			Help: "Total number of coordinator state transitions, by target state",
		}, []string{"state"}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsStopped,
		m.segmentsStarted,
		m.segmentsFailed,
		m.recordingsFiled,
		m.recording,
		m.stateTransitions,
	)
	return m
}

// Observe updates the metrics for one coordinator event.
func (m *Metrics) Observe(e session.Event) {
	switch e := e.(type) {
	case session.StateChanged:
		m.stateTransitions.WithLabelValues(e.To.String()).Inc()
		switch {
		case e.From == session.NotRecording:
			m.runsStarted.Inc()
			m.recording.Set(1)
		case e.To == session.NotRecording:
			reason := e.Reason.String()
			if reason == "" {
				reason = "unknown"
			}
			m.runsStopped.WithLabelValues(reason).Inc()
			m.recording.Set(0)
		}
	case session.SegmentStarted:
		m.segmentsStarted.Inc()
	case session.SegmentFailed:
		m.segmentsFailed.Inc()
	case session.RecordingFinalized:
		if e.Err != nil {
			m.recordingsFiled.WithLabelValues("error").Inc()
		} else {
			m.recordingsFiled.WithLabelValues("ok").Inc()
		}
	}
}

// Consume observes events until the channel is closed.
func (m *Metrics) Consume(events <-chan session.Event) {
	for e := range events {
		m.Observe(e)
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
