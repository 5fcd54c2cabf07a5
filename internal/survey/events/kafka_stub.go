//go:build !kafka
// +build !kafka

package events

import (
	"context"
	"fmt"
)

// KafkaPublisher is a stub implementation when Kafka support is disabled
// Build with -tags=kafka to enable event publishing
type KafkaPublisher struct{}

// NewKafkaPublisher is a stub implementation when Kafka support is disabled
// Build with -tags=kafka to enable event publishing
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	return nil, fmt.Errorf("kafka support not enabled: rebuild with -tags=kafka to publish events")
}

func (kp *KafkaPublisher) Publish(ctx context.Context, ev ConfirmedEvent) error {
	return fmt.Errorf("kafka support not enabled: rebuild with -tags=kafka to publish events")
}

// Metrics reports counters for the debug endpoint.
func (kp *KafkaPublisher) Metrics() map[string]int64 { return nil }

func (kp *KafkaPublisher) Close() {}
