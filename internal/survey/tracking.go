package survey

import (
	"sort"
)

// TrackerConfig bounds the confirmation window of the tracker.
type TrackerConfig struct {
	// HistorySize is the number of observation timestamps retained per track.
	HistorySize int

	// MinDetectionFrames is the number of sightings inside the window
	// required before a track is confirmed as a real pothole.
	MinDetectionFrames int

	// DetectionTimeWindow is the window length in video seconds.
	DetectionTimeWindow float64
}

// DefaultTrackerConfig returns the tracker parameters used in production.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HistorySize:         20,
		MinDetectionFrames:  3,
		DetectionTimeWindow: 1.0,
	}
}

// Observation is one sighting of a tracked pothole on a sampled frame.
type Observation struct {
	TrackID    int64
	FrameID    int
	Timestamp  float64
	Confidence float64
}

// ConfirmedPothole is the identity record created the instant a track first
// reaches the confirmation threshold. Its fields are fixed at confirmation
// time and never updated by later observations.
type ConfirmedPothole struct {
	TrackID        int64
	FirstSeenFrame int
	FirstSeenTime  float64
	Confidence     float64
}

// Record converts the confirmation into its report form, rounding the
// timestamp and confidence the way the persisted report expects.
func (c ConfirmedPothole) Record() PotholeRecord {
	return PotholeRecord{
		PotholeID:          c.TrackID,
		FirstDetectedFrame: c.FirstSeenFrame,
		FirstDetectedTime:  round2(c.FirstSeenTime),
		Confidence:         round3(c.Confidence),
	}
}

// Tracker de-duplicates raw per-frame detections into unique potholes.
// The same physical pothole is seen across many consecutive frames under one
// track id; a track is confirmed once it has been sighted MinDetectionFrames
// times within DetectionTimeWindow, and stays confirmed forever after.
//
// A Tracker is owned by a single pipeline run and is not safe for
// concurrent use.
type Tracker struct {
	cfg       TrackerConfig
	history   map[int64]*timeRing
	confirmed map[int64]ConfirmedPothole
}

// NewTracker creates a tracker with the given configuration. Zero or negative
// config fields fall back to the defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.HistorySize < 1 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.MinDetectionFrames < 1 {
		cfg.MinDetectionFrames = def.MinDetectionFrames
	}
	if cfg.DetectionTimeWindow <= 0 {
		cfg.DetectionTimeWindow = def.DetectionTimeWindow
	}
	return &Tracker{
		cfg:       cfg,
		history:   make(map[int64]*timeRing),
		confirmed: make(map[int64]ConfirmedPothole),
	}
}

// Observe records one sighting of a track. It returns whether the track is
// confirmed (now or previously), and whether this call confirmed it.
// Timestamps are expected in non-decreasing order per track.
func (t *Tracker) Observe(obs Observation) (confirmed, newlyConfirmed bool) {
	ring := t.history[obs.TrackID]
	if ring == nil {
		ring = newTimeRing(t.cfg.HistorySize)
		t.history[obs.TrackID] = ring
	}
	ring.Add(obs.Timestamp)

	recent := ring.CountSince(obs.Timestamp - t.cfg.DetectionTimeWindow)

	if _, ok := t.confirmed[obs.TrackID]; ok {
		return true, false
	}

	if recent >= t.cfg.MinDetectionFrames {
		t.confirmed[obs.TrackID] = ConfirmedPothole{
			TrackID:        obs.TrackID,
			FirstSeenFrame: obs.FrameID,
			FirstSeenTime:  obs.Timestamp,
			Confidence:     obs.Confidence,
		}
		diagf("track %d confirmed at frame %d (t=%.3fs, conf=%.3f)",
			obs.TrackID, obs.FrameID, obs.Timestamp, obs.Confidence)
		return true, true
	}

	return false, false
}

// IsConfirmed reports whether the track has been confirmed.
func (t *Tracker) IsConfirmed(trackID int64) bool {
	_, ok := t.confirmed[trackID]
	return ok
}

// ConfirmedCount returns the number of unique confirmed potholes.
func (t *Tracker) ConfirmedCount() int {
	return len(t.confirmed)
}

// Confirmed returns all confirmed potholes sorted by first-seen frame
// ascending, with track id as the tiebreak for a deterministic order.
func (t *Tracker) Confirmed() []ConfirmedPothole {
	out := make([]ConfirmedPothole, 0, len(t.confirmed))
	for _, c := range t.confirmed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenFrame != out[j].FirstSeenFrame {
			return out[i].FirstSeenFrame < out[j].FirstSeenFrame
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// timeRing is a bounded ring of observation timestamps. The oldest entry is
// overwritten once the ring is at capacity.
type timeRing struct {
	times    []float64
	capacity int
	head     int // next write position
	size     int
}

func newTimeRing(capacity int) *timeRing {
	return &timeRing{
		times:    make([]float64, capacity),
		capacity: capacity,
	}
}

// Add stores a timestamp, overwriting the oldest if at capacity.
func (r *timeRing) Add(t float64) {
	r.times[r.head] = t
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// CountSince returns how many stored timestamps are >= cutoff.
func (r *timeRing) CountSince(cutoff float64) int {
	n := 0
	for i := 0; i < r.size; i++ {
		idx := (r.head - r.size + i + r.capacity) % r.capacity
		if r.times[idx] >= cutoff {
			n++
		}
	}
	return n
}
