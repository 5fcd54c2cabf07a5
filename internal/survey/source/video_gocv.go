//go:build gocv
// +build gocv

package source

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// videoFile decodes frames from a video container through OpenCV.
type videoFile struct {
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	meta Metadata
	next int
}

// OpenVideo opens a video file for decoding.
// This function is only available when building with the 'gocv' build tag.
func OpenVideo(path string) (Source, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("open video %s: capture not opened", path)
	}
	meta := Metadata{
		Width:       int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(cap.Get(gocv.VideoCaptureFrameHeight)),
		TotalFrames: int(cap.Get(gocv.VideoCaptureFrameCount)),
		FPS:         cap.Get(gocv.VideoCaptureFPS),
	}
	return &videoFile{cap: cap, mat: gocv.NewMat(), meta: meta}, nil
}

func (v *videoFile) Meta() Metadata { return v.meta }

func (v *videoFile) Next() (Frame, error) {
	if ok := v.cap.Read(&v.mat); !ok || v.mat.Empty() {
		return Frame{}, io.EOF
	}
	v.next++
	img, err := v.mat.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame %d: %w", v.next, err)
	}
	return Frame{Index: v.next, Image: img}, nil
}

// Skip reads the next frame into the reusable buffer without converting it,
// which is cheaper than Next for frames the pipeline will not analyse.
func (v *videoFile) Skip() error {
	if ok := v.cap.Read(&v.mat); !ok || v.mat.Empty() {
		return io.EOF
	}
	v.next++
	return nil
}

func (v *videoFile) Close() error {
	v.mat.Close()
	return v.cap.Close()
}
