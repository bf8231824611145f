package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel events are fanned out on.
const DefaultChannel = "helpdesk:events"

// redisPublisher is the slice of the go-redis client the publisher needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards events to a Redis channel so out-of-process
// notifiers (mail, push) can consume them.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

// NewRedisPublisher creates a publisher on channel (DefaultChannel if empty).
func NewRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Handle is an EventHandler that publishes the JSON-encoded event.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event to redis: %w", err)
	}
	return nil
}

// SubscribeAll registers the publisher for every event type.
func (p *RedisPublisher) SubscribeAll(d Dispatcher) {
	for _, eventType := range AllEventTypes {
		d.Subscribe(eventType, p.Handle)
	}
}
