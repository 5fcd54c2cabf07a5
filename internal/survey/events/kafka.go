//go:build kafka
// +build kafka

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/pavescan-data/surface.report/internal/monitoring"
)

// KafkaPublisher sends confirmed-pothole events through a Kafka producer
// with idempotence enabled and a delivery-report goroutine tracking acks.
// This implementation is only available when building with the 'kafka' build tag.
type KafkaPublisher struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	maxRetries  int
	baseBackoff time.Duration
}

// NewKafkaPublisher connects a producer to the configured brokers.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("no kafka brokers configured")
	}

	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":   cfg.Brokers,
		"acks":                "all",
		"enable.idempotence":  true,
		"compression.type":    "snappy",
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}
	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	kp := &KafkaPublisher{
		producer:     p,
		topic:        cfg.Topic,
		deliveryChan: make(chan kafka.Event, 1024),
		ctx:          ctx,
		cancel:       cancel,
		maxRetries:   3,
		baseBackoff:  100 * time.Millisecond,
	}

	kp.wg.Add(1)
	go kp.handleDeliveryReports()

	monitoring.Logf("kafka publisher connected: topic=%s brokers=%s", cfg.Topic, cfg.Brokers)
	return kp, nil
}

// handleDeliveryReports processes delivery confirmations until Close.
func (kp *KafkaPublisher) handleDeliveryReports() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.ctx.Done():
			return
		case e := <-kp.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				kp.failed.Add(1)
				monitoring.Logf("kafka delivery failed: %v", m.TopicPartition.Error)
			} else {
				kp.acked.Add(1)
			}
		}
	}
}

// Publish enqueues one event, retrying retriable produce errors with
// exponential backoff.
func (kp *KafkaPublisher) Publish(ctx context.Context, ev ConfirmedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &kp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(ev.VideoID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "class_name", Value: []byte("pothole")},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= kp.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := kp.baseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := kp.producer.Produce(message, kp.deliveryChan)
		if err == nil {
			kp.sent.Add(1)
			return nil
		}
		lastErr = err

		if kafkaErr, ok := err.(kafka.Error); ok && !kafkaErr.IsRetriable() {
			kp.failed.Add(1)
			return fmt.Errorf("non-retriable produce error: %w", err)
		}
	}

	kp.failed.Add(1)
	return fmt.Errorf("produce failed after %d retries: %w", kp.maxRetries, lastErr)
}

// Metrics reports counters for the debug endpoint.
func (kp *KafkaPublisher) Metrics() map[string]int64 {
	return map[string]int64{
		"events_sent":   kp.sent.Load(),
		"events_acked":  kp.acked.Load(),
		"events_failed": kp.failed.Load(),
	}
}

// Close flushes pending messages and shuts the producer down.
func (kp *KafkaPublisher) Close() {
	remaining := kp.producer.Flush(int((10 * time.Second).Milliseconds()))
	if remaining > 0 {
		monitoring.Logf("kafka close: %d events still queued after flush timeout", remaining)
	}
	kp.cancel()
	kp.wg.Wait()
	kp.producer.Close()
}
