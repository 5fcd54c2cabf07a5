// Package metrics exposes service counters to Prometheus. Counters are
// plain atomics bumped from the hot paths; a private registry serves them
// through GaugeFuncs so scrapes never touch pipeline locks.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all service metrics
type Metrics struct {
	// Job lifecycle counters
	JobsAdmitted  atomic.Uint64
	JobsRejected  atomic.Uint64
	JobsCompleted atomic.Uint64
	JobsFailed    atomic.Uint64
	JobsActive    atomic.Int64

	// Frame pipeline counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64

	// Detection counters
	Detections        atomic.Uint64
	ConfirmedPotholes atomic.Uint64

	// Event publishing counters
	EventsPublished atomic.Uint64
	EventsDropped   atomic.Uint64

	// Live update delivery
	ListenersActive atomic.Int64
	UpdatesDropped  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() float64
	}{
		{"survey_jobs_admitted_total", "Total survey jobs accepted for processing",
			func() float64 { return float64(m.JobsAdmitted.Load()) }},
		{"survey_jobs_rejected_total", "Total survey jobs rejected because the queue was full",
			func() float64 { return float64(m.JobsRejected.Load()) }},
		{"survey_jobs_completed_total", "Total survey jobs completed successfully",
			func() float64 { return float64(m.JobsCompleted.Load()) }},
		{"survey_jobs_failed_total", "Total survey jobs that ended in error",
			func() float64 { return float64(m.JobsFailed.Load()) }},
		{"survey_jobs_active", "Survey jobs currently being processed",
			func() float64 { return float64(m.JobsActive.Load()) }},
		{"survey_frames_read_total", "Total video frames read from sources",
			func() float64 { return float64(m.FramesRead.Load()) }},
		{"survey_frames_processed_total", "Total sampled frames run through detection",
			func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"survey_detections_total", "Total confirmed detections across all frames",
			func() float64 { return float64(m.Detections.Load()) }},
		{"survey_confirmed_potholes_total", "Total unique potholes confirmed",
			func() float64 { return float64(m.ConfirmedPotholes.Load()) }},
		{"survey_events_published_total", "Total confirmed-pothole events published",
			func() float64 { return float64(m.EventsPublished.Load()) }},
		{"survey_events_dropped_total", "Total confirmed-pothole events dropped on publish failure",
			func() float64 { return float64(m.EventsDropped.Load()) }},
		{"survey_ws_listeners", "WebSocket listeners currently attached",
			func() float64 { return float64(m.ListenersActive.Load()) }},
		{"survey_updates_dropped_total", "Total live updates dropped on slow or absent listeners",
			func() float64 { return float64(m.UpdatesDropped.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.load,
		))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
