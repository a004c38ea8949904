package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// SignalBus implements domain.SignalBus using Redis Pub/Sub.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. Glob
// patterns use PSUBSCRIBE. The subscription and the returned channel are
// closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)

// EventPublisher publishes bet events as JSON on a Pub/Sub channel. The
// websocket hub subscribes to the same channel.
type EventPublisher struct {
	bus     domain.SignalBus
	channel string
}

// NewEventPublisher creates an EventPublisher writing to channel.
func NewEventPublisher(bus domain.SignalBus, channel string) *EventPublisher {
	return &EventPublisher{bus: bus, channel: channel}
}

// PublishBetEvent marshals evt and publishes it.
func (p *EventPublisher) PublishBetEvent(ctx context.Context, evt domain.BetEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: marshal %s event: %w", evt.Type, err)
	}
	return p.bus.Publish(ctx, p.channel, payload)
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
