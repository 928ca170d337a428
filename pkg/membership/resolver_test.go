package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-relay/pkg/store"
)

type fakeSource struct {
	members map[string][]string
	err     error
	calls   int
}

func (f *fakeSource) ChatMembers(_ context.Context, chatID string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[chatID]
	if !ok {
		return nil, store.ErrChatNotFound
	}
	return m, nil
}

type fakeConnected struct {
	users []string
}

func (f *fakeConnected) ConnectedUsers() []string { return f.users }

func TestRecipientsFor_FromStore(t *testing.T) {
	src := &fakeSource{members: map[string][]string{"c1": {"alice", "bob"}}}
	r := NewResolver(src, &fakeConnected{})

	got, err := r.RecipientsFor(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestRecipientsFor_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{members: map[string][]string{"c1": {"alice"}}}
	r := NewResolver(src, &fakeConnected{})

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.RecipientsFor(context.Background(), "c1")
	require.NoError(t, err)
	_, err = r.RecipientsFor(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second lookup served from cache")

	// Past the TTL the entry is refreshed wholesale.
	r.now = func() time.Time { return now.Add(cacheTTL + time.Second) }
	src.members["c1"] = []string{"alice", "carol"}

	got, err := r.RecipientsFor(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, []string{"alice", "carol"}, got)
}

func TestRecipientsFor_FallsBackToConnectedUsers(t *testing.T) {
	src := &fakeSource{members: map[string][]string{}}
	conn := &fakeConnected{users: []string{"dave", "erin"}}
	r := NewResolver(src, conn)

	got, err := r.RecipientsFor(context.Background(), "unknown-chat")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "erin"}, got,
		"missing membership record delivers to every connected user")
}

func TestRecipientsFor_StoreErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	r := NewResolver(src, &fakeConnected{users: []string{"dave"}})

	_, err := r.RecipientsFor(context.Background(), "c1")
	assert.Error(t, err, "only a missing record triggers the fallback, not store failure")
}
