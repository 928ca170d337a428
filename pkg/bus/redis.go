package bus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-relay/pkg/logger"
)

const (
	reconnectBase = 200 * time.Millisecond
	reconnectMax  = 5 * time.Second
)

// RedisBus is the default Bus: Redis pub/sub. Fire-and-forget fan-out to
// whoever is subscribed at publish time.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(addr string) *RedisBus {
	return &RedisBus{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	backoff := reconnectBase
	for {
		pubsub := b.rdb.Subscribe(ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("bus: subscribe %s failed: %v, retrying in %v", channel, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectBase

		ch := pubsub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				h([]byte(msg.Payload))
			}
		}
		pubsub.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorf("bus: subscription to %s dropped, reconnecting", channel)
	}
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
