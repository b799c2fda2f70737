package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// Event headers
const (
	HeaderEventType = "event-type"
	HeaderEventID   = "event-id"
)

// EventProducer writes domain events keyed by aggregate id, so every change
// of one call or shared call lands on the same partition in order
type EventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewEventProducer ensures the events topic exists. Writes are synchronous:
// the outbox poller only marks a message processed once Kafka acknowledged it.
func NewEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	if err := ensureTopic(ctx, brokers[0], cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &EventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

func (p *EventProducer) PublishEvent(ctx context.Context, event *shared.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderEventID, Value: []byte(event.ID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"topic", p.topic,
			"event_id", event.ID.String(),
			"event_type", string(event.Type),
			"error", err,
		)
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, p.topic, err)
	}

	p.logger.Debug("Published event",
		"topic", p.topic,
		"event_id", event.ID.String(),
		"event_type", string(event.Type),
		"aggregate_id", event.AggregateID,
	)
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
