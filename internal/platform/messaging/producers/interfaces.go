package producers

import (
	"context"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes domain events to the events topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *shared.Event) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
