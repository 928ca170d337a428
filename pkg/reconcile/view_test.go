package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-relay/pkg/model"
)

type rangeCall struct {
	chatID   string
	from, to int64
}

type fakeHistory struct {
	messages map[string][]model.Message
	err      error
	calls    []rangeCall
}

func (f *fakeHistory) Range(_ context.Context, chatID string, from, to int64, limit int) ([]model.Message, error) {
	f.calls = append(f.calls, rangeCall{chatID: chatID, from: from, to: to})
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Message
	for _, m := range f.messages[chatID] {
		if from > 0 && m.Seq < from {
			continue
		}
		if to > 0 && m.Seq > to {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func msg(chatID string, seq int64) model.Message {
	return model.Message{
		ID:     fmt.Sprintf("%s-m%d", chatID, seq),
		ChatID: chatID,
		Seq:    seq,
		Text:   fmt.Sprintf("message %d", seq),
	}
}

func seqs(ms []model.Message) []int64 {
	out := make([]int64, len(ms))
	for i, m := range ms {
		out[i] = m.Seq
	}
	return out
}

func TestApply_InOrderAdvancesLastSeen(t *testing.T) {
	v := NewView(&fakeHistory{})

	v.Apply(context.Background(), msg("c1", 1))
	v.Apply(context.Background(), msg("c1", 2))

	assert.Equal(t, int64(2), v.LastSeen("c1"))
	assert.Equal(t, []int64{1, 2}, seqs(v.Messages("c1")))
}

func TestApply_FirstDeliveryWithoutBaselineSkipsBackfill(t *testing.T) {
	h := &fakeHistory{}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 7))

	assert.Equal(t, int64(7), v.LastSeen("c1"))
	assert.Empty(t, h.calls, "no prior baseline to compare against")
}

func TestApply_GapTriggersBoundedBackfill(t *testing.T) {
	h := &fakeHistory{messages: map[string][]model.Message{
		"c1": {msg("c1", 1), msg("c1", 2), msg("c1", 3), msg("c1", 4), msg("c1", 5)},
	}}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 1))
	v.Apply(context.Background(), msg("c1", 2))
	v.Apply(context.Background(), msg("c1", 5))

	require.Len(t, h.calls, 1)
	assert.Equal(t, rangeCall{chatID: "c1", from: 3, to: 4}, h.calls[0])
	assert.Equal(t, int64(5), v.LastSeen("c1"))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs(v.Messages("c1")))
}

func TestApply_BackfillFailureStillAdvancesLastSeen(t *testing.T) {
	h := &fakeHistory{err: errors.New("history down")}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 2))
	v.Apply(context.Background(), msg("c1", 5))

	assert.Equal(t, int64(5), v.LastSeen("c1"))
	assert.Equal(t, []int64{2, 5}, seqs(v.Messages("c1")),
		"view proceeds without the missing messages")
}

func TestApply_PermanentGapNotRetried(t *testing.T) {
	// Sequence 3 was consumed by a duplicate race and never persisted.
	h := &fakeHistory{messages: map[string][]model.Message{
		"c1": {msg("c1", 1), msg("c1", 2), msg("c1", 4)},
	}}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 1))
	v.Apply(context.Background(), msg("c1", 2))
	v.Apply(context.Background(), msg("c1", 4))

	require.Len(t, h.calls, 1)
	assert.Equal(t, rangeCall{chatID: "c1", from: 3, to: 3}, h.calls[0])
	assert.Equal(t, int64(4), v.LastSeen("c1"),
		"lastSeen advances even when the read returns fewer records than expected")

	// The next in-order delivery does not re-chase the gap.
	v.Apply(context.Background(), msg("c1", 5))
	assert.Len(t, h.calls, 1)
}

func TestApply_DuplicateDeliveryDoesNotRegress(t *testing.T) {
	v := NewView(&fakeHistory{})

	v.Apply(context.Background(), msg("c1", 1))
	v.Apply(context.Background(), msg("c1", 2))
	v.Apply(context.Background(), msg("c1", 2))
	v.Apply(context.Background(), msg("c1", 1))

	assert.Equal(t, int64(2), v.LastSeen("c1"))
	assert.Equal(t, []int64{1, 2}, seqs(v.Messages("c1")), "merged by identity, not appended")
}

func TestApply_OutOfOrderDelayedDeliveryMerges(t *testing.T) {
	h := &fakeHistory{}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 3))
	delayed := msg("c1", 2)
	v.Apply(context.Background(), delayed)

	assert.Equal(t, int64(3), v.LastSeen("c1"))
	assert.Equal(t, []int64{2, 3}, seqs(v.Messages("c1")))
}

func TestApply_ChatsAreIndependent(t *testing.T) {
	h := &fakeHistory{}
	v := NewView(h)

	v.Apply(context.Background(), msg("c1", 4))
	v.Apply(context.Background(), msg("c2", 9))

	assert.Equal(t, int64(4), v.LastSeen("c1"))
	assert.Equal(t, int64(9), v.LastSeen("c2"))
	assert.Empty(t, h.calls)
}

func TestLoad_SeedsLastSeenFromHistory(t *testing.T) {
	h := &fakeHistory{messages: map[string][]model.Message{
		"c1": {msg("c1", 1), msg("c1", 2), msg("c1", 3)},
	}}
	v := NewView(h)

	require.NoError(t, v.Load(context.Background(), "c1", 50))
	assert.Equal(t, int64(3), v.LastSeen("c1"))
	assert.Equal(t, []int64{1, 2, 3}, seqs(v.Messages("c1")))

	// A live delivery overlapping the initial read merges by identity.
	v.Apply(context.Background(), msg("c1", 3))
	assert.Equal(t, []int64{1, 2, 3}, seqs(v.Messages("c1")))
}

func TestMessages_UnknownChatIsEmpty(t *testing.T) {
	v := NewView(&fakeHistory{})
	assert.Nil(t, v.Messages("nope"))
	assert.Zero(t, v.LastSeen("nope"))
}
