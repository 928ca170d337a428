// Package membership resolves a chat id to its recipient user ids, caching
// results for a fixed TTL over the external membership store.
package membership

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/store"
)

const cacheTTL = 30 * time.Second

// MemberSource is the external membership store; ChatMembers returns
// store.ErrChatNotFound when no record exists for the chat.
type MemberSource interface {
	ChatMembers(ctx context.Context, chatID string) ([]string, error)
}

// ConnectedUsers supplies the fallback recipient set, normally the session
// registry.
type ConnectedUsers interface {
	ConnectedUsers() []string
}

type cacheEntry struct {
	members   []string
	fetchedAt time.Time
}

type Resolver struct {
	source    MemberSource
	connected ConnectedUsers

	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time
}

func NewResolver(source MemberSource, connected ConnectedUsers) *Resolver {
	return &Resolver{
		source:    source,
		connected: connected,
		cache:     make(map[string]cacheEntry),
		now:       time.Now,
	}
}

// RecipientsFor returns the member user ids for chatID. When the store has no
// record for the chat, every currently connected user is returned instead so
// messages are never silently dropped on missing membership metadata; that
// fallback is policy, not an error. Entries are cached for 30 seconds and
// replaced wholesale on refresh.
func (r *Resolver) RecipientsFor(ctx context.Context, chatID string) ([]string, error) {
	now := r.now()

	r.mu.Lock()
	if e, ok := r.cache[chatID]; ok && now.Sub(e.fetchedAt) < cacheTTL {
		members := e.members
		r.mu.Unlock()
		return members, nil
	}
	r.mu.Unlock()

	members, err := r.source.ChatMembers(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		members = r.connected.ConnectedUsers()
		logger.Debug("membership: no record, falling back to connected users",
			zap.String("chatId", chatID), zap.Int("recipients", len(members)))
	} else if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[chatID] = cacheEntry{members: members, fetchedAt: now}
	r.mu.Unlock()

	return members, nil
}
