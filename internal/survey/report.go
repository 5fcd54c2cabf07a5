package survey

import (
	"fmt"
	"math"
)

// BBox is a bounding box in full-frame pixel coordinates.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center is the box midpoint in full-frame pixel coordinates.
type Center struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Detection is one confirmed-pothole sighting on a sampled frame. Bounding
// boxes are stored in full-frame pixel coordinates matching the original
// video resolution, never ROI-relative, so clients can draw them directly
// on a canvas sized from VideoInfo.
type Detection struct {
	FrameID    int     `json:"frame_id"`
	PotholeID  int64   `json:"pothole_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Center     Center  `json:"center"`
	Area       int     `json:"area"`
}

// NewDetection builds a Detection from a full-frame bounding box, computing
// the center and area and rounding the confidence for storage.
func NewDetection(frameID int, potholeID int64, confidence float64, box BBox) Detection {
	return Detection{
		FrameID:    frameID,
		PotholeID:  potholeID,
		Type:       "pothole",
		Confidence: round3(confidence),
		BBox:       box,
		Center: Center{
			X: (box.X1 + box.X2) / 2,
			Y: (box.Y1 + box.Y2) / 2,
		},
		Area: (box.X2 - box.X1) * (box.Y2 - box.Y1),
	}
}

// VideoInfo describes the source video. Clients size their canvas from
// Width and Height and schedule playback from FPS.
type VideoInfo struct {
	TotalFrames int     `json:"total_frames"`
	FPS         float64 `json:"fps"`
	Duration    float64 `json:"duration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Resolution  string  `json:"resolution"`
}

// NewVideoInfo builds a VideoInfo from source metadata.
func NewVideoInfo(width, height, totalFrames int, fps float64) VideoInfo {
	duration := 0.0
	if fps > 0 {
		duration = round2(float64(totalFrames) / fps)
	}
	return VideoInfo{
		TotalFrames: totalFrames,
		FPS:         round2(fps),
		Duration:    duration,
		Width:       width,
		Height:      height,
		Resolution:  fmt.Sprintf("%dx%d", width, height),
	}
}

// Summary aggregates the counters of one completed run.
type Summary struct {
	TotalFrames          int     `json:"total_frames"`
	ProcessedFrames      int     `json:"processed_frames"`
	FrameStep            int     `json:"frame_step"`
	UniquePotholes       int     `json:"unique_potholes"`
	TotalDetections      int     `json:"total_detections"`
	FramesWithDetections int     `json:"frames_with_detections"`
	DetectionRate        float64 `json:"detection_rate"`
}

// NewSummary builds the run summary from raw counters. DetectionRate is the
// percentage of processed frames that produced confirmed detections.
func NewSummary(totalFrames, processedFrames, frameStep, uniquePotholes, totalDetections, framesWithDetections int) Summary {
	rate := 0.0
	if processedFrames > 0 {
		rate = round2(float64(framesWithDetections) / float64(processedFrames) * 100)
	}
	return Summary{
		TotalFrames:          totalFrames,
		ProcessedFrames:      processedFrames,
		FrameStep:            frameStep,
		UniquePotholes:       uniquePotholes,
		TotalDetections:      totalDetections,
		FramesWithDetections: framesWithDetections,
		DetectionRate:        rate,
	}
}

// PotholeRecord is one unique pothole in the report's confirmed list.
type PotholeRecord struct {
	PotholeID          int64   `json:"pothole_id"`
	FirstDetectedFrame int     `json:"first_detected_frame"`
	FirstDetectedTime  float64 `json:"first_detected_time"`
	Confidence         float64 `json:"confidence"`
}

// Report is the terminal artifact of one survey job. It is produced once at
// completion, stored in memory and as a JSON file keyed by job id, and read
// thereafter by the results endpoint.
type Report struct {
	VideoID     string          `json:"video_id"`
	VideoPath   string          `json:"video_path"`
	SpeedKMH    int             `json:"speed_kmh"`
	ProcessedAt string          `json:"processed_at"`
	VideoInfo   VideoInfo       `json:"video_info"`
	Summary     Summary         `json:"summary"`
	PotholeList []PotholeRecord `json:"pothole_list"`
	Frames      []FrameLogEntry `json:"frames"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
