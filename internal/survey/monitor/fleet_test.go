package monitor

import (
	"math"
	"testing"
	"time"

	"github.com/pavescan-data/surface.report/internal/survey"
)

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func fleetReport(rate float64, confidences ...float64) *survey.Report {
	r := &survey.Report{
		VideoID: "vid-fleet",
		Summary: survey.Summary{DetectionRate: rate},
	}
	for i, c := range confidences {
		r.PotholeList = append(r.PotholeList, survey.PotholeRecord{
			PotholeID:          int64(i + 1),
			FirstDetectedFrame: 30 * (i + 1),
			FirstDetectedTime:  float64(i + 1),
			Confidence:         c,
		})
	}
	return r
}

func TestFleetStatsEmptySnapshot(t *testing.T) {
	fs := NewFleetStats()
	snap := fs.Snapshot()

	if snap.JobsRecorded != 0 {
		t.Errorf("JobsRecorded = %d, want 0", snap.JobsRecorded)
	}
	if snap.PotholesRecorded != 0 {
		t.Errorf("PotholesRecorded = %d, want 0", snap.PotholesRecorded)
	}
	if snap.MeanConfidence != 0 || snap.MaxConfidence != 0 {
		t.Error("confidence stats should be zero with no samples")
	}
	if snap.Timestamp.IsZero() {
		t.Error("snapshot timestamp not set")
	}
}

func TestFleetStatsSnapshot(t *testing.T) {
	fs := NewFleetStats()
	fs.Record(fleetReport(2.0, 0.6, 0.7, 0.8))
	fs.Record(fleetReport(4.0, 0.9))

	snap := fs.Snapshot()

	if snap.JobsRecorded != 2 {
		t.Errorf("JobsRecorded = %d, want 2", snap.JobsRecorded)
	}
	if snap.PotholesRecorded != 4 {
		t.Errorf("PotholesRecorded = %d, want 4", snap.PotholesRecorded)
	}
	if !approx(snap.MeanConfidence, 0.75, 1e-9) {
		t.Errorf("MeanConfidence = %v, want 0.75", snap.MeanConfidence)
	}
	if !approx(snap.StdDevConfidence, 0.12909944, 1e-6) {
		t.Errorf("StdDevConfidence = %v, want ~0.1291", snap.StdDevConfidence)
	}
	if snap.MinConfidence != 0.6 || snap.MaxConfidence != 0.9 {
		t.Errorf("confidence range = [%v, %v], want [0.6, 0.9]", snap.MinConfidence, snap.MaxConfidence)
	}
	if snap.MedianConfidence != 0.7 {
		t.Errorf("MedianConfidence = %v, want 0.7", snap.MedianConfidence)
	}
	if snap.P90Confidence != 0.9 {
		t.Errorf("P90Confidence = %v, want 0.9", snap.P90Confidence)
	}
	if !approx(snap.MeanDetectionRate, 3.0, 1e-9) {
		t.Errorf("MeanDetectionRate = %v, want 3.0", snap.MeanDetectionRate)
	}
}

func TestFleetStatsSingleSampleHasNoStdDev(t *testing.T) {
	fs := NewFleetStats()
	fs.Record(fleetReport(1.0, 0.85))

	snap := fs.Snapshot()
	if snap.StdDevConfidence != 0 {
		t.Errorf("StdDevConfidence = %v, want 0 for a single sample", snap.StdDevConfidence)
	}
	if snap.MeanConfidence != 0.85 {
		t.Errorf("MeanConfidence = %v, want 0.85", snap.MeanConfidence)
	}
}

func TestFleetStatsBoundsSamples(t *testing.T) {
	fs := NewFleetStats()

	confidences := make([]float64, maxFleetSamples+10)
	for i := range confidences {
		confidences[i] = 0.5
	}
	fs.Record(fleetReport(1.0, confidences...))

	snap := fs.Snapshot()
	if snap.PotholesRecorded != maxFleetSamples {
		t.Errorf("PotholesRecorded = %d, want %d after bounding", snap.PotholesRecorded, maxFleetSamples)
	}
}

func TestFleetStatsUptime(t *testing.T) {
	fs := NewFleetStats()
	time.Sleep(10 * time.Millisecond)

	if up := fs.Uptime(); up < 10*time.Millisecond {
		t.Errorf("Uptime = %v, want at least 10ms", up)
	}
}
