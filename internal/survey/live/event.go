// Package live bridges the survey pipeline to WebSocket listeners. The
// pipeline publishes events without blocking; a single dispatcher goroutine
// delivers them to at most one listener per job, dropping updates rather
// than stalling frame processing.
package live

import "github.com/pavescan-data/surface.report/internal/survey"

// Event is one message pushed to a job's listener. Optional fields are
// pointers so each event type serializes exactly the keys it carries: an
// error event has no progress, only progress events carry detection counts.
type Event struct {
	Type            string          `json:"type"`
	Status          string          `json:"status,omitempty"`
	Progress        *int            `json:"progress,omitempty"`
	Message         string          `json:"message,omitempty"`
	UniquePotholes  *int            `json:"unique_potholes,omitempty"`
	TotalDetections *int            `json:"total_detections,omitempty"`
	Summary         *survey.Summary `json:"summary,omitempty"`
}

// Terminal reports whether the event ends the job's update stream. The hub
// closes the listener after delivering a terminal event.
func (e Event) Terminal() bool {
	return e.Type == "complete" || e.Type == "error"
}

func ptrInt(v int) *int { return &v }

// StatusEvent wraps a queryable status as a pushed snapshot.
func StatusEvent(st survey.Status) Event {
	return Event{
		Type:     "status",
		Status:   st.Status,
		Progress: ptrInt(st.Progress),
		Message:  st.Message,
	}
}

// ProgressEvent reports mid-run progress with the current detection counts.
func ProgressEvent(progress int, message string, uniquePotholes, totalDetections int) Event {
	return Event{
		Type:            "progress",
		Progress:        ptrInt(progress),
		Message:         message,
		UniquePotholes:  ptrInt(uniquePotholes),
		TotalDetections: ptrInt(totalDetections),
	}
}

// CompleteEvent announces a finished job with its report summary.
func CompleteEvent(message string, summary survey.Summary) Event {
	return Event{
		Type:     "complete",
		Status:   survey.StateCompleted,
		Progress: ptrInt(100),
		Message:  message,
		Summary:  &summary,
	}
}

// ErrorEvent announces a failed job. It carries no progress value.
func ErrorEvent(message string) Event {
	return Event{
		Type:    "error",
		Status:  survey.StateError,
		Message: message,
	}
}

// HeartbeatEvent keeps an idle connection alive. It carries only its type.
func HeartbeatEvent() Event {
	return Event{Type: "heartbeat"}
}
