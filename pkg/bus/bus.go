// Package bus is a narrow publish/subscribe transport between the ingestion
// edge, the sequencer, and the fanout dispatcher. The contract is
// deliberately thin: at-most-once, best-effort, broadcast to every
// subscription, no persistence, no acknowledgment. A publish with zero live
// subscribers is lost. Implementations with stronger guarantees (a durable
// log) can be swapped in without touching the components on either side.
package bus

import "context"

const (
	ChannelIngestion = "messages-ingestion"
	ChannelDelivery  = "messages-delivery"
)

// Handler processes one payload. Handlers run sequentially per subscription:
// a slow handler delays later deliveries to that subscription only.
type Handler func(payload []byte)

type Bus interface {
	// Publish sends payload to every live subscription on channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe delivers every payload published on channel to h, blocking
	// until ctx is cancelled. Transport outages are retried with backoff;
	// payloads published while disconnected are lost.
	Subscribe(ctx context.Context, channel string, h Handler) error
}
