package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tidewave/tidewave/internal/logger"
)

// Handler processes an incoming event.
type Handler func(ctx context.Context, event *Event) error

// Bus wraps a Redis client for pub/sub. All methods are safe on a nil
// receiver, which publishes nothing.
type Bus struct {
	client        *redis.Client
	channelPrefix string
	log           *logger.Logger
}

// NewBus connects a pub/sub bus. channelPrefix namespaces the channels,
// e.g. "tidewave".
func NewBus(addr, password string, db int, channelPrefix string, log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channelPrefix: channelPrefix,
		log:           log.Component("eventbus"),
	}
}

// HealthCheck verifies Redis connectivity.
func (b *Bus) HealthCheck(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}

// Publish sends an event to its channel. Failures are logged, not returned:
// event delivery is best effort and must never break a backtest.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	if b == nil || event == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.log.WithError(err).Warn("Dropping unserializable event", "event_type", event.EventType)
		return
	}
	channel := b.channelFor(event.EventType)
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.log.WithError(err).Warn("Failed to publish event", "channel", channel)
	}
}

// Subscribe listens for events of one type until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, eventType string, handler Handler) error {
	if b == nil {
		return fmt.Errorf("no bus configured")
	}
	channel := b.channelFor(eventType)
	pubsub := b.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	b.log.Info("Subscribed to channel", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.WithError(err).Warn("Skipping malformed event", "channel", channel)
				continue
			}
			if err := handler(ctx, &event); err != nil {
				b.log.WithError(err).Warn("Event handler failed", "event_type", event.EventType)
			}
		}
	}
}

func (b *Bus) channelFor(eventType string) string {
	return b.channelPrefix + ":" + eventType
}
