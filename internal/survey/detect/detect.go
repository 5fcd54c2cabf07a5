// Package detect defines the detection contract the survey pipeline runs
// against, with three adapters: an OpenCV DNN model (build tag gocv), a
// remote HTTP model server, and a scripted detector for tests and replay.
package detect

import (
	"context"
	"image"

	"github.com/pavescan-data/surface.report/internal/survey/source"
)

// Region selects the analysed part of a video frame. YStart is the top of
// the region in full-frame pixel coordinates; boxes returned by a detector
// are region-local, so callers add YStart back when mapping to the frame.
type Region struct {
	Frame  source.Frame
	YStart int
}

// Image returns the cropped region of the frame. Image types that cannot
// be cropped are returned whole.
func (r Region) Image() image.Image {
	b := r.Frame.Image.Bounds()
	if r.YStart <= b.Min.Y {
		return r.Frame.Image
	}
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := r.Frame.Image.(subImager); ok {
		return si.SubImage(image.Rect(b.Min.X, r.YStart, b.Max.X, b.Max.Y))
	}
	return r.Frame.Image
}

// Result is one detected box in a single frame region. TrackID is 0 when
// the detector has no stable identity for the box; the pipeline counts such
// detections but never confirms them.
type Result struct {
	TrackID    int64
	Class      string
	Confidence float64
	Box        image.Rectangle
}

// Detector runs inference over a frame region at a confidence threshold.
type Detector interface {
	Detect(ctx context.Context, region Region, conf float64) ([]Result, error)
}
