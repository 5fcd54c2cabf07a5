//go:build !gocv
// +build !gocv

package source

import "fmt"

// OpenVideo is a stub implementation when OpenCV support is disabled
// Build with -tags=gocv to enable video file decoding
func OpenVideo(path string) (Source, error) {
	return nil, fmt.Errorf("video decoding not enabled: rebuild with -tags=gocv to read video files")
}
