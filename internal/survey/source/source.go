// Package source provides video frame sources for the survey pipeline.
// The real decoder wraps OpenCV and is only compiled in with -tags=gocv;
// the synthetic source generates frames in memory for tests and demos.
package source

import "image"

// Metadata describes an opened video stream as reported by its container.
// FPS and TotalFrames are zero when the container does not report them.
type Metadata struct {
	Width       int
	Height      int
	TotalFrames int
	FPS         float64
}

// Frame is a single decoded video frame. Index is 1-based and counts every
// frame in the stream, including frames the pipeline skips over.
type Frame struct {
	Index int
	Image image.Image
}

// Source yields video frames in stream order.
type Source interface {
	Meta() Metadata
	// Next decodes and returns the next frame. Returns io.EOF after the
	// last frame.
	Next() (Frame, error)
	// Skip advances past the next frame without decoding it. Returns
	// io.EOF at end of stream.
	Skip() error
	Close() error
}

// OpenFunc opens a video source from a file path or URI.
type OpenFunc func(path string) (Source, error)
