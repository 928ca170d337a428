package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-relay/pkg/logger"
)

// KafkaBus is the durable-log Bus variant. Each subscription joins its own
// consumer group so every subscriber sees every payload (broadcast, not
// load-balanced), matching the pub/sub contract. Unlike RedisBus it retains
// published payloads, which is strictly more than the contract requires.
type KafkaBus struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaBus(brokers []string) *KafkaBus {
	return &KafkaBus{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (b *KafkaBus) writer(channel string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[channel]
	if !ok {
		w = &kafka.Writer{
			Addr:     kafka.TCP(b.brokers...),
			Topic:    channel,
			Balancer: &kafka.LeastBytes{},
		}
		b.writers[channel] = w
	}
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.writer(channel).WriteMessages(ctx, kafka.Message{
		Value: payload,
		Time:  time.Now(),
	})
}

func (b *KafkaBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	// Unique group per subscription so all subscribers receive everything.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       channel,
		GroupID:     fmt.Sprintf("relay-%s-%d", channel, time.Now().UnixNano()),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	backoff := reconnectBase
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("bus: kafka read on %s failed: %v, retrying in %v", channel, err, backoff)
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
		h(m.Value)
	}
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
