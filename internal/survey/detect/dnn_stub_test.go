//go:build !gocv
// +build !gocv

package detect

import (
	"context"
	"strings"
	"testing"
)

// TestOpenModel_Stub tests the stub implementation returns an error
func TestOpenModel_Stub(t *testing.T) {
	d, err := OpenModel("models/pothole-detector.onnx")
	if err == nil {
		t.Error("Expected error from stub implementation")
	}
	if d != nil {
		t.Error("Expected nil detector from stub implementation")
	}
	if err != nil && !strings.Contains(err.Error(), "model inference not enabled") {
		t.Errorf("Expected disabled-support error, got '%s'", err.Error())
	}
}

func TestDNNDetect_Stub(t *testing.T) {
	var d DNN
	if _, err := d.Detect(context.Background(), Region{Frame: testFrame(1, 32, 32)}, 0.3); err == nil {
		t.Error("Expected error from stub implementation")
	}
}
