package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events as JSON messages on a redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return errors.New("events: redis publisher not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Listener subscribes to the registration channel.
type Listener struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewListener constructs a listener for channel.
func NewListener(client *redis.Client, channel string, logger *slog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{client: client, channel: channel, logger: logger}
}

// Subscription is an active channel subscription.
type Subscription struct {
	pubsub *redis.PubSub
	logger *slog.Logger
}

// Subscribe returns once redis has confirmed the subscription, so events
// published afterwards are guaranteed to be delivered.
func (l *Listener) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := l.client.Subscribe(ctx, l.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("events: subscribe %s: %w", l.channel, err)
	}
	return &Subscription{pubsub: pubsub, logger: l.logger}, nil
}

// Run delivers events to handle until ctx is done or the subscription closes.
// Malformed messages are logged and skipped.
func (s *Subscription) Run(ctx context.Context, handle func(context.Context, Event)) error {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("discard malformed event", slog.String("channel", msg.Channel), slog.Any("error", err))
				continue
			}
			handle(ctx, event)
		}
	}
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
