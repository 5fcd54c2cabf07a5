package monitor

import (
	"time"

	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/monitoring"
)

// StatsReporter periodically logs a one-line summary of pipeline activity.
// Designed to run for the life of the process with a coarse interval.
type StatsReporter struct {
	Metrics  *metrics.Metrics
	Fleet    *FleetStats
	Interval time.Duration
	StopChan chan struct{}

	done chan struct{}
}

// NewStatsReporter creates a reporter with a one-minute interval.
func NewStatsReporter(m *metrics.Metrics, fleet *FleetStats) *StatsReporter {
	return &StatsReporter{
		Metrics:  m,
		Fleet:    fleet,
		Interval: time.Minute,
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic reporter loop in a goroutine.
func (r *StatsReporter) Start() {
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RunOnce()
			case <-r.StopChan:
				return
			}
		}
	}()
}

// Stop stops the reporter and waits for the loop to exit.
func (r *StatsReporter) Stop() {
	close(r.StopChan)
	if r.done != nil {
		<-r.done
	}
}

// RunOnce logs the current counters. Stays quiet until the service has
// admitted a job or read a frame.
func (r *StatsReporter) RunOnce() {
	m := r.Metrics
	if m.JobsAdmitted.Load() == 0 && m.FramesRead.Load() == 0 {
		return
	}

	snap := r.Fleet.Snapshot()
	monitoring.Logf("Survey stats: %d active, %d completed, %d failed, %d frames processed, %d confirmed potholes (mean conf %.3f)",
		m.JobsActive.Load(), m.JobsCompleted.Load(), m.JobsFailed.Load(),
		m.FramesProcessed.Load(), m.ConfirmedPotholes.Load(), snap.MeanConfidence)
}
