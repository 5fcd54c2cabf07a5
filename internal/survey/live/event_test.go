package live

import (
	"encoding/json"
	"testing"

	"github.com/pavescan-data/surface.report/internal/survey"
)

func keysOf(t *testing.T, ev Event) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStatusEventShape(t *testing.T) {
	m := keysOf(t, StatusEvent(survey.Status{
		Status:   survey.StateQueued,
		Progress: 0,
		Message:  "Video uploaded, waiting to process...",
	}))

	if m["type"] != "status" || m["status"] != "queued" {
		t.Errorf("event = %v", m)
	}
	if m["progress"] != float64(0) {
		t.Errorf("progress = %v, want explicit 0", m["progress"])
	}
	if _, ok := m["unique_potholes"]; ok {
		t.Error("status event should not carry detection counts")
	}
}

func TestProgressEventShape(t *testing.T) {
	m := keysOf(t, ProgressEvent(45, "Frame 120/300 (60 processed)", 2, 7))

	if m["type"] != "progress" {
		t.Errorf("type = %v", m["type"])
	}
	if _, ok := m["status"]; ok {
		t.Error("progress event should not carry a status")
	}
	if m["progress"] != float64(45) || m["unique_potholes"] != float64(2) || m["total_detections"] != float64(7) {
		t.Errorf("event = %v", m)
	}
}

func TestCompleteEventShape(t *testing.T) {
	summary := survey.NewSummary(300, 150, 2, 1, 3, 3)
	m := keysOf(t, CompleteEvent("Processing completed successfully", summary))

	if m["type"] != "complete" || m["status"] != "completed" || m["progress"] != float64(100) {
		t.Errorf("event = %v", m)
	}
	s, ok := m["summary"].(map[string]interface{})
	if !ok {
		t.Fatal("complete event missing summary")
	}
	if s["unique_potholes"] != float64(1) {
		t.Errorf("summary = %v", s)
	}
}

func TestErrorEventShape(t *testing.T) {
	m := keysOf(t, ErrorEvent("Processing failed: Could not open video"))

	if m["type"] != "error" || m["status"] != "error" {
		t.Errorf("event = %v", m)
	}
	if _, ok := m["progress"]; ok {
		t.Error("error event should not carry a progress value")
	}
}

func TestHeartbeatEventShape(t *testing.T) {
	m := keysOf(t, HeartbeatEvent())

	if len(m) != 1 || m["type"] != "heartbeat" {
		t.Errorf("heartbeat should carry only its type, got %v", m)
	}
}

func TestTerminal(t *testing.T) {
	if StatusEvent(survey.Status{}).Terminal() {
		t.Error("status should not be terminal")
	}
	if ProgressEvent(10, "", 0, 0).Terminal() {
		t.Error("progress should not be terminal")
	}
	if !CompleteEvent("", survey.Summary{}).Terminal() {
		t.Error("complete should be terminal")
	}
	if !ErrorEvent("").Terminal() {
		t.Error("error should be terminal")
	}
}
