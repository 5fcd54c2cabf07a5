package monitor

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pavescan-data/surface.report/internal/survey"
)

// maxFleetSamples bounds the confidence and rate series so a long-lived
// process does not grow without limit. Oldest samples are dropped first.
const maxFleetSamples = 8192

// StatsSnapshot summarises the completed runs seen so far. Served by the
// stats endpoint and rendered on the status page.
type StatsSnapshot struct {
	JobsRecorded      int       `json:"jobs_recorded"`
	PotholesRecorded  int       `json:"potholes_recorded"`
	MeanConfidence    float64   `json:"mean_confidence"`
	StdDevConfidence  float64   `json:"stddev_confidence"`
	MinConfidence     float64   `json:"min_confidence"`
	MaxConfidence     float64   `json:"max_confidence"`
	MedianConfidence  float64   `json:"median_confidence"`
	P90Confidence     float64   `json:"p90_confidence"`
	MeanDetectionRate float64   `json:"mean_detection_rate"`
	Timestamp         time.Time `json:"timestamp"`
}

// FleetStats aggregates completed reports with thread-safe operations.
// The pipeline's completion hook feeds it one report per finished job.
type FleetStats struct {
	mu          sync.Mutex
	startTime   time.Time
	jobs        int
	confidences []float64
	rates       []float64
}

// NewFleetStats creates an empty aggregate.
func NewFleetStats() *FleetStats {
	return &FleetStats{startTime: time.Now()}
}

// Record folds one completed report into the aggregate.
func (fs *FleetStats) Record(r *survey.Report) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.jobs++
	for _, p := range r.PotholeList {
		fs.confidences = append(fs.confidences, p.Confidence)
	}
	fs.rates = append(fs.rates, r.Summary.DetectionRate)

	if len(fs.confidences) > maxFleetSamples {
		fs.confidences = fs.confidences[len(fs.confidences)-maxFleetSamples:]
	}
	if len(fs.rates) > maxFleetSamples {
		fs.rates = fs.rates[len(fs.rates)-maxFleetSamples:]
	}
}

// Snapshot computes summary statistics over the recorded samples. Fields
// stay zero until at least one report with confirmed potholes arrives;
// the standard deviation needs two samples.
func (fs *FleetStats) Snapshot() StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	snap := StatsSnapshot{
		JobsRecorded:     fs.jobs,
		PotholesRecorded: len(fs.confidences),
		Timestamp:        time.Now(),
	}

	if len(fs.confidences) > 0 {
		sorted := append([]float64(nil), fs.confidences...)
		sort.Float64s(sorted)

		snap.MeanConfidence = stat.Mean(sorted, nil)
		if len(sorted) > 1 {
			snap.StdDevConfidence = stat.StdDev(sorted, nil)
		}
		snap.MinConfidence = sorted[0]
		snap.MaxConfidence = sorted[len(sorted)-1]
		snap.MedianConfidence = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		snap.P90Confidence = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	}
	if len(fs.rates) > 0 {
		snap.MeanDetectionRate = stat.Mean(fs.rates, nil)
	}
	return snap
}

// Uptime returns the time since the aggregate was created.
func (fs *FleetStats) Uptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return time.Since(fs.startTime)
}
