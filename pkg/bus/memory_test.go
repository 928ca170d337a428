package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu       sync.Mutex
	payloads [][]byte
	notify   chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.payloads) >= n {
			out := append([][]byte(nil), c.payloads...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d payloads", n)
		}
	}
}

func TestMemoryBus_BroadcastsToAllSubscriptions(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c1 := newCollector()
	c2 := newCollector()
	go b.Subscribe(ctx, ChannelDelivery, c1.handle)
	go b.Subscribe(ctx, ChannelDelivery, c2.handle)
	time.Sleep(20 * time.Millisecond) // let subscriptions register

	require.NoError(t, b.Publish(ctx, ChannelDelivery, []byte("one")))
	require.NoError(t, b.Publish(ctx, ChannelDelivery, []byte("two")))

	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, c1.wait(t, 2))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, c2.wait(t, 2))
}

func TestMemoryBus_ChannelsAreIndependent(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingest := newCollector()
	deliver := newCollector()
	go b.Subscribe(ctx, ChannelIngestion, ingest.handle)
	go b.Subscribe(ctx, ChannelDelivery, deliver.handle)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish(ctx, ChannelIngestion, []byte("raw")))

	assert.Equal(t, [][]byte{[]byte("raw")}, ingest.wait(t, 1))
	assert.Empty(t, deliver.payloads)
}

func TestMemoryBus_PublishWithoutSubscribersIsLost(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Publish(context.Background(), ChannelIngestion, []byte("void")))

	// A later subscriber sees nothing that was published before it was live.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	go b.Subscribe(ctx, ChannelIngestion, c.handle)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish(ctx, ChannelIngestion, []byte("live")))
	assert.Equal(t, [][]byte{[]byte("live")}, c.wait(t, 1))
}

func TestMemoryBus_SubscribeEndsOnCancel(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- b.Subscribe(ctx, ChannelDelivery, func([]byte) {}) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end on cancel")
	}
}
