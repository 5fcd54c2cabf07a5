//go:build !gocv
// +build !gocv

package detect

import (
	"context"
	"fmt"
)

// DNN is a stub implementation when OpenCV support is disabled
// Build with -tags=gocv to enable DNN model inference
type DNN struct{}

// OpenModel is a stub implementation when OpenCV support is disabled
// Build with -tags=gocv to enable DNN model inference
func OpenModel(path string) (*DNN, error) {
	return nil, fmt.Errorf("model inference not enabled: rebuild with -tags=gocv to load ONNX models")
}

func (d *DNN) Detect(ctx context.Context, region Region, conf float64) ([]Result, error) {
	return nil, fmt.Errorf("model inference not enabled: rebuild with -tags=gocv to load ONNX models")
}

// Close releases the network.
func (d *DNN) Close() error { return nil }
