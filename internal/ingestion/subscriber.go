package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
)

// Ingester accepts submissions. *Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, sub Submission) (*reading.Reading, error)
}

// MessageSource is the part of *mqtt.Client the subscriber uses.
type MessageSource interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Subscriber feeds MQTT telemetry messages into the pipeline.
//
// Payloads are JSON submissions. When the payload has no device ID the
// last topic level is used, so devices may publish bare
// {"value": 21.5, "unit": "C"} to storefront/telemetry/TEMP_001.
type Subscriber struct {
	ingester Ingester
	source   MessageSource
	topic    string
	qos      byte
	logger   Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewSubscriber creates a subscriber for topic (normally
// storefront/telemetry/+).
func NewSubscriber(ingester Ingester, source MessageSource, topic string, qos byte) *Subscriber {
	return &Subscriber{
		ingester: ingester,
		source:   source,
		topic:    topic,
		qos:      qos,
		logger:   noopLogger{},
		ctx:      context.Background(),
	}
}

// SetLogger sets the logger for rejected messages.
func (s *Subscriber) SetLogger(logger Logger) {
	s.logger = logger
}

// Start subscribes. Messages are ingested under ctx until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.source.Subscribe(s.topic, s.qos, s.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	s.logger.Info("telemetry subscriber started", "topic", s.topic)
	return nil
}

// Stop unsubscribes.
func (s *Subscriber) Stop() error {
	if err := s.source.Unsubscribe(s.topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", s.topic, err)
	}
	return nil
}

// handle ingests one message. Rejections are logged here and returned so
// the MQTT client records them too.
func (s *Subscriber) handle(topic string, payload []byte) error {
	var sub Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		s.logger.Warn("discarding malformed telemetry message", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if sub.DeviceID == "" {
		if id, ok := mqtt.DeviceIDFromTelemetry(topic); ok {
			sub.DeviceID = id
		}
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	rd, err := s.ingester.Ingest(ctx, sub)
	if err != nil {
		s.logger.Warn("telemetry submission rejected", "topic", topic, "device_id", sub.DeviceID, "error", err)
		return err
	}
	s.logger.Debug("telemetry reading ingested", "reading_id", rd.ID, "device_id", rd.DeviceID)
	return nil
}
