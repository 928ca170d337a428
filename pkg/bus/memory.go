package bus

import (
	"context"
	"sync"
)

const memoryBufferSize = 256

// MemoryBus is an in-process Bus used by tests and single-binary setups.
// Semantics match the contract: broadcast to live subscriptions, payloads
// dropped when a subscription's buffer is full or no subscription exists.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan []byte)}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
			// Slow subscriber, drop. At-most-once allows it.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	ch := make(chan []byte, memoryBufferSize)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		live := b.subs[channel][:0]
		for _, c := range b.subs[channel] {
			if c != ch {
				live = append(live, c)
			}
		}
		b.subs[channel] = live
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			h(payload)
		}
	}
}
