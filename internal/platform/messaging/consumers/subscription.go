package consumers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/shared"
)

// Subscription decodes domain events from a consumer into a channel.
// Undecodable messages are logged and skipped.
type Subscription struct {
	consumer Consumer
	logger   *slog.Logger
	events   chan shared.Event
}

func NewSubscription(logger *slog.Logger, consumer Consumer, buffer int) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	return &Subscription{
		consumer: consumer,
		logger:   logger,
		events:   make(chan shared.Event, buffer),
	}
}

// Events is closed once Run returns
func (s *Subscription) Events() <-chan shared.Event {
	return s.events
}

// Run blocks until ctx is canceled or the consumer stops
func (s *Subscription) Run(ctx context.Context) error {
	defer close(s.events)

	return s.consumer.Subscribe(ctx, func(ctx context.Context, key []byte, value []byte) error {
		var event shared.Event
		if err := json.Unmarshal(value, &event); err != nil {
			s.logger.Warn("Skipping undecodable event", "key", string(key), "error", err)
			return nil
		}

		select {
		case s.events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
