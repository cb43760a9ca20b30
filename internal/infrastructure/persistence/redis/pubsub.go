package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/messaging"
)

// PubSub adapts the go-redis client to messaging.RedisClient.
type PubSub struct {
	client *redis.Client
}

// NewPubSub creates a Pub/Sub adapter over the cache's client.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{client: cache.client}
}

// Publish sends message on channel.
func (p *PubSub) Publish(ctx context.Context, channel, message string) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe listens on channel until ctx ends. The returned channel is
// closed when the subscription stops.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan messaging.RedisMessage, error) {
	sub := p.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		defer sub.Close()
		pipe(ctx, sub.Channel(), out)
	}()
	return out, nil
}

func pipe(ctx context.Context, in <-chan *redis.Message, out chan<- messaging.RedisMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}
