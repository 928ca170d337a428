// Package reconcile is the consumer-side view of delivered messages: it
// tracks the last-seen sequence number per chat and backfills detected gaps
// with bounded range reads against the persisted history.
package reconcile

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/model"
)

// HistoryReader is the external history store. Range returns messages for
// chatID ascending by sequence number, bounded inclusively by from/to when
// positive and capped by limit when positive.
type HistoryReader interface {
	Range(ctx context.Context, chatID string, from, to int64, limit int) ([]model.Message, error)
}

type chatView struct {
	lastSeen int64
	byID     map[string]model.Message
}

// View holds per-chat reconciliation state. Messages merge by identity, never
// by sequence number, so overlapping backfills and live deliveries are safe
// to apply in any order.
type View struct {
	history HistoryReader

	mu    sync.Mutex
	chats map[string]*chatView
}

func NewView(history HistoryReader) *View {
	return &View{history: history, chats: make(map[string]*chatView)}
}

func (v *View) chat(chatID string) *chatView {
	cv, ok := v.chats[chatID]
	if !ok {
		cv = &chatView{byID: make(map[string]model.Message)}
		v.chats[chatID] = cv
	}
	return cv
}

// Load seeds the view for chatID from an initial history read, setting
// lastSeen to the highest sequence number returned.
func (v *View) Load(ctx context.Context, chatID string, limit int) error {
	msgs, err := v.history.Range(ctx, chatID, 0, 0, limit)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	cv := v.chat(chatID)
	for _, m := range msgs {
		cv.byID[m.ID] = m
		if m.Seq > cv.lastSeen {
			cv.lastSeen = m.Seq
		}
	}
	return nil
}

// Apply merges one delivered message into the view. A jump past lastSeen+1
// triggers a range read for the skipped interval; lastSeen advances to the
// delivered sequence number whether or not the backfill succeeds, since gaps
// left by duplicate submissions are permanent and must not be chased forever.
// Deliveries at or below lastSeen merge by identity and never regress it.
func (v *View) Apply(ctx context.Context, m model.Message) {
	v.mu.Lock()
	cv := v.chat(m.ChatID)
	prev := cv.lastSeen
	if _, ok := cv.byID[m.ID]; !ok {
		cv.byID[m.ID] = m
	}
	if m.Seq > cv.lastSeen {
		cv.lastSeen = m.Seq
	}
	v.mu.Unlock()

	if prev == 0 || m.Seq <= prev+1 {
		return
	}

	missing, err := v.history.Range(ctx, m.ChatID, prev+1, m.Seq-1, 0)
	if err != nil {
		// Proceed without the missing messages.
		logger.Error("reconcile: backfill failed",
			zap.String("chatId", m.ChatID),
			zap.Int64("from", prev+1), zap.Int64("to", m.Seq-1),
			zap.Error(err))
		return
	}

	v.mu.Lock()
	for _, mm := range missing {
		if _, ok := cv.byID[mm.ID]; !ok {
			cv.byID[mm.ID] = mm
		}
	}
	v.mu.Unlock()
}

// Messages returns the chat's merged view sorted by sequence number
// ascending.
func (v *View) Messages(chatID string) []model.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	cv, ok := v.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]model.Message, 0, len(cv.byID))
	for _, m := range cv.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// LastSeen returns the chat's last-seen sequence number, zero when the chat
// has no state yet.
func (v *View) LastSeen(chatID string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	cv, ok := v.chats[chatID]
	if !ok {
		return 0
	}
	return cv.lastSeen
}
