// Package events publishes confirmed-pothole events to Kafka. The producer
// is only compiled in with -tags=kafka; without brokers configured the
// pipeline runs with a nil publisher and skips publishing entirely.
package events

import (
	"context"
	"os"

	"github.com/pavescan-data/surface.report/internal/survey"
)

// ConfirmedEvent is emitted once per newly confirmed pothole. Key fields
// mirror the report's pothole list; bbox is the confirming detection in
// full-frame pixels.
type ConfirmedEvent struct {
	VideoID    string      `json:"video_id"`
	PotholeID  int64       `json:"pothole_id"`
	Frame      int         `json:"frame"`
	Timestamp  float64     `json:"timestamp"`
	Confidence float64     `json:"confidence"`
	SpeedKMH   int         `json:"speed_kmh"`
	BBox       survey.BBox `json:"bbox"`
}

// Publisher delivers confirmed-pothole events to an external system.
// Publish failures are logged by callers and never fail the survey run.
type Publisher interface {
	Publish(ctx context.Context, ev ConfirmedEvent) error
	Close()
}

// Config holds the Kafka connection settings. An empty Brokers string
// disables publishing.
type Config struct {
	Brokers string
	Topic   string
}

// FromEnv reads the Kafka settings from KAFKA_BROKERS and KAFKA_TOPIC.
func FromEnv() Config {
	cfg := Config{
		Brokers: os.Getenv("KAFKA_BROKERS"),
		Topic:   os.Getenv("KAFKA_TOPIC"),
	}
	if cfg.Topic == "" {
		cfg.Topic = "pothole.confirmed"
	}
	return cfg
}
