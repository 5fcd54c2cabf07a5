package survey

// DefaultMaxStoredFrames caps the frame log to keep long videos from
// exhausting memory. When the log is full, the oldest entry is dropped
// to admit a new one; the confirmed-pothole list is never truncated.
const DefaultMaxStoredFrames = 1500

// FrameLogEntry records one sampled frame that produced at least one
// confirmed-pothole detection.
type FrameLogEntry struct {
	FrameID  int         `json:"frame_id"`
	SpeedKMH int         `json:"speed_kmh"`
	ROIRatio float64     `json:"roi_ratio"`
	Potholes []Detection `json:"potholes"`
}

// FrameLog is a bounded FIFO of frame entries. Owned by a single pipeline
// run; not safe for concurrent use.
type FrameLog struct {
	entries  []FrameLogEntry
	capacity int
	head     int // next write position
	size     int
}

// NewFrameLog creates a frame log with the specified capacity.
func NewFrameLog(capacity int) *FrameLog {
	if capacity < 1 {
		capacity = DefaultMaxStoredFrames
	}
	return &FrameLog{
		entries:  make([]FrameLogEntry, capacity),
		capacity: capacity,
	}
}

// Append stores a new entry, evicting exactly the oldest if at capacity.
func (l *FrameLog) Append(e FrameLogEntry) {
	if l.size == l.capacity {
		tracef("frame log full, dropping frame %d", l.oldest().FrameID)
	}
	l.entries[l.head] = e
	l.head = (l.head + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
}

// Len returns the current number of entries.
func (l *FrameLog) Len() int {
	return l.size
}

// Capacity returns the maximum number of entries that can be stored.
func (l *FrameLog) Capacity() int {
	return l.capacity
}

// Entries returns all entries from oldest to newest.
func (l *FrameLog) Entries() []FrameLogEntry {
	if l.size == 0 {
		return []FrameLogEntry{}
	}
	out := make([]FrameLogEntry, l.size)
	for i := 0; i < l.size; i++ {
		idx := (l.head - l.size + i + l.capacity) % l.capacity
		out[i] = l.entries[idx]
	}
	return out
}

func (l *FrameLog) oldest() FrameLogEntry {
	idx := (l.head - l.size + l.capacity) % l.capacity
	return l.entries[idx]
}
