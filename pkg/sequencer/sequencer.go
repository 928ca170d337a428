// Package sequencer consumes raw submissions from the ingestion channel,
// assigns a monotonic per-chat sequence number, persists the message
// idempotently, and republishes the enriched result on the delivery channel.
package sequencer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/model"
)

// Store is the slice of the document store the sequencer needs. NextSeq must
// be linearizable per chat across all sequencer instances.
type Store interface {
	NextSeq(ctx context.Context, chatID string) (int64, error)
	Insert(ctx context.Context, m *model.Message) error
	InsertWithDedup(ctx context.Context, m *model.Message) (*model.Message, bool, error)
}

type Sequencer struct {
	store Store
	bus   bus.Bus

	// Overridable for tests.
	newID func() string
	now   func() time.Time
}

func New(st Store, b bus.Bus) *Sequencer {
	return &Sequencer{
		store: st,
		bus:   b,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Run subscribes to the ingestion channel and processes submissions until ctx
// is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	return s.bus.Subscribe(ctx, bus.ChannelIngestion, func(payload []byte) {
		s.handle(ctx, payload)
	})
}

func (s *Sequencer) handle(ctx context.Context, payload []byte) {
	var ev model.SubmissionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Error("sequencer: malformed submission dropped", zap.Error(err))
		return
	}
	if ev.ChatID == "" || ev.SenderID == "" {
		logger.Error("sequencer: submission missing chatId or senderId, dropped")
		return
	}

	msg, err := s.AssignAndPersist(ctx, ev)
	if err != nil {
		// Fire-and-forget ingestion: no retry, no redelivery.
		logger.Error("sequencer: submission dropped",
			zap.String("chatId", ev.ChatID), zap.Error(err))
		return
	}

	enriched, err := json.Marshal(msg)
	if err != nil {
		logger.Error("sequencer: marshal failed", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, bus.ChannelDelivery, enriched); err != nil {
		// The message is persisted; consumers recover it via reconciliation.
		logger.Error("sequencer: delivery publish failed",
			zap.String("id", msg.ID), zap.Error(err))
	}
}

// AssignAndPersist allocates the next sequence number for the submission's
// chat, then persists. The counter is always consumed before the dedup check:
// when a duplicate submission loses the insert race, the freshly allocated
// number is discarded and never assigned, leaving a permanent gap in the
// chat's sequence. That ordering is intentional and load-bearing for the
// idempotency contract: the winner's number is already durable, so the
// original message is returned unchanged.
func (s *Sequencer) AssignAndPersist(ctx context.Context, ev model.SubmissionEvent) (*model.Message, error) {
	n, err := s.store.NextSeq(ctx, ev.ChatID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:        s.newID(),
		ChatID:    ev.ChatID,
		SenderID:  ev.SenderID,
		Text:      ev.Text,
		Seq:       n,
		CreatedAt: s.now(),
		ClientID:  ev.ClientID,
		TempID:    ev.TempID,
	}

	if !ev.HasDedupKey() {
		if err := s.store.Insert(ctx, msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	saved, created, err := s.store.InsertWithDedup(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !created {
		logger.Debug("sequencer: duplicate submission, sequence number discarded",
			zap.String("chatId", ev.ChatID),
			zap.Int64("discarded", n),
			zap.Int64("original", saved.Seq))
	}
	return saved, nil
}
