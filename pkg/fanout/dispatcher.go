// Package fanout routes each enriched message from the delivery channel to
// every live session of every resolved recipient.
package fanout

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/registry"
)

// Resolver yields the recipient user ids for a chat.
type Resolver interface {
	RecipientsFor(ctx context.Context, chatID string) ([]string, error)
}

type Dispatcher struct {
	bus      bus.Bus
	resolver Resolver
	sessions *registry.Registry
}

func NewDispatcher(b bus.Bus, r Resolver, sessions *registry.Registry) *Dispatcher {
	return &Dispatcher{bus: b, resolver: r, sessions: sessions}
}

// Run subscribes to the delivery channel until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.bus.Subscribe(ctx, bus.ChannelDelivery, func(payload []byte) {
		d.Dispatch(ctx, payload)
	})
}

// Dispatch pushes one delivery-channel payload to every session of every
// recipient. The payload is forwarded as-is so sessions see the wire format
// unchanged. A failed send is logged and isolated: one broken pipe never
// aborts the fanout, and no acknowledgment is collected.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) {
	var msg model.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Error("fanout: undecodable delivery payload dropped", zap.Error(err))
		return
	}

	recipients, err := d.resolver.RecipientsFor(ctx, msg.ChatID)
	if err != nil {
		logger.Error("fanout: recipient resolution failed",
			zap.String("chatId", msg.ChatID), zap.Error(err))
		return
	}

	logger.Debug("fanout: deliver",
		zap.String("chatId", msg.ChatID),
		zap.Int64("seq", msg.Seq),
		zap.Int("recipients", len(recipients)))

	for _, userID := range recipients {
		for _, sess := range d.sessions.SessionsFor(userID) {
			if err := sess.Send(payload); err != nil {
				logger.Error("fanout: session send failed",
					zap.String("userId", userID),
					zap.Int64("connId", sess.ID()),
					zap.Error(err))
			}
		}
	}
}
