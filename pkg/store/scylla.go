// Package store owns all ScyllaDB access: the per-chat sequence counter, the
// idempotent message insert, history range reads, and the read-only chat
// membership lookup. The sequencer is the sole writer of messages and
// counters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/model"
)

var (
	// ErrChatNotFound means no chat record exists; callers such as the
	// membership resolver treat it as a policy signal, not a failure.
	ErrChatNotFound = errors.New("chat not found")

	// ErrUnavailable wraps counter or insert failures. Submissions hitting
	// it are dropped by the sequencer.
	ErrUnavailable = errors.New("store unavailable")
)

// Counter CAS attempts before giving up on a sequence number.
const maxCounterRetries = 10

type Store struct {
	session *gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Store, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	logger.Info("connected to ScyllaDB cluster")
	return &Store{session: session}, nil
}

func (s *Store) Close() {
	s.session.Close()
}

// NextSeq atomically advances the chat's sequence counter and returns the new
// value, creating the counter on first use. Scylla cannot increment and read
// back in one statement, so this runs a lightweight-transaction compare-and-
// set loop; contention on the same chat retries, different chats never
// contend.
func (s *Store) NextSeq(ctx context.Context, chatID string) (int64, error) {
	for i := 0; i < maxCounterRetries; i++ {
		var cur int64
		err := s.session.Query(
			`SELECT seq FROM chat_counters WHERE chat_id = ?`, chatID,
		).WithContext(ctx).Scan(&cur)

		if errors.Is(err, gocql.ErrNotFound) {
			applied, err := s.session.Query(
				`INSERT INTO chat_counters (chat_id, seq) VALUES (?, 1) IF NOT EXISTS`, chatID,
			).WithContext(ctx).MapScanCAS(map[string]interface{}{})
			if err != nil {
				return 0, fmt.Errorf("%w: counter init for %s: %v", ErrUnavailable, chatID, err)
			}
			if applied {
				return 1, nil
			}
			continue // lost the init race, reread
		}
		if err != nil {
			return 0, fmt.Errorf("%w: counter read for %s: %v", ErrUnavailable, chatID, err)
		}

		next := cur + 1
		applied, err := s.session.Query(
			`UPDATE chat_counters SET seq = ? WHERE chat_id = ? IF seq = ?`, next, chatID, cur,
		).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return 0, fmt.Errorf("%w: counter update for %s: %v", ErrUnavailable, chatID, err)
		}
		if applied {
			return next, nil
		}
	}
	return 0, fmt.Errorf("%w: counter contention on %s exceeded %d attempts",
		ErrUnavailable, chatID, maxCounterRetries)
}

// Insert persists a message unconditionally.
func (s *Store) Insert(ctx context.Context, m *model.Message) error {
	err := s.session.Query(
		`INSERT INTO messages (chat_id, seq, id, sender_id, text, created_at, client_id, temp_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.Seq, m.ID, m.SenderID, m.Text, m.CreatedAt, m.ClientID, m.TempID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("%w: insert message %s: %v", ErrUnavailable, m.ID, err)
	}
	return nil
}

// InsertWithDedup persists m keyed by its (chatId, clientId, tempId) dedup
// key. The dedup table is the idempotency authority: an insert-if-absent
// there decides the winner, and the loser gets the pre-existing message back
// with its original sequence number. Returns the persisted message and
// whether this call created it.
func (s *Store) InsertWithDedup(ctx context.Context, m *model.Message) (*model.Message, bool, error) {
	prev := map[string]interface{}{}
	applied, err := s.session.Query(
		`INSERT INTO message_dedup (chat_id, client_id, temp_id, message_id, seq)
		 VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		m.ChatID, m.ClientID, m.TempID, m.ID, m.Seq,
	).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return nil, false, fmt.Errorf("%w: dedup insert for %s: %v", ErrUnavailable, m.ChatID, err)
	}

	if applied {
		if err := s.Insert(ctx, m); err != nil {
			return nil, false, err
		}
		return m, true, nil
	}

	existingSeq, _ := prev["seq"].(int64)
	existing, err := s.messageAt(ctx, m.ChatID, existingSeq)
	if err != nil {
		return nil, false, fmt.Errorf("%w: duplicate of %s/%d has no body: %v",
			ErrUnavailable, m.ChatID, existingSeq, err)
	}
	return existing, false, nil
}

func (s *Store) messageAt(ctx context.Context, chatID string, seq int64) (*model.Message, error) {
	var m model.Message
	err := s.session.Query(
		`SELECT chat_id, seq, id, sender_id, text, created_at, client_id, temp_id
		 FROM messages WHERE chat_id = ? AND seq = ?`, chatID, seq,
	).WithContext(ctx).Scan(
		&m.ChatID, &m.Seq, &m.ID, &m.SenderID, &m.Text, &m.CreatedAt, &m.ClientID, &m.TempID,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Range reads messages for chatID ascending by sequence number. from/to are
// inclusive bounds; zero values mean unbounded on that side. limit caps the
// result when positive.
func (s *Store) Range(ctx context.Context, chatID string, from, to int64, limit int) ([]model.Message, error) {
	q := `SELECT chat_id, seq, id, sender_id, text, created_at, client_id, temp_id
	      FROM messages WHERE chat_id = ?`
	args := []interface{}{chatID}
	if from > 0 {
		q += ` AND seq >= ?`
		args = append(args, from)
	}
	if to > 0 {
		q += ` AND seq <= ?`
		args = append(args, to)
	}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.session.Query(q, args...).WithContext(ctx).Iter()
	var out []model.Message
	var m model.Message
	for iter.Scan(&m.ChatID, &m.Seq, &m.ID, &m.SenderID, &m.Text, &m.CreatedAt, &m.ClientID, &m.TempID) {
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("range read on %s: %w", chatID, err)
	}
	return out, nil
}

// ChatMembers returns the member user ids recorded for chatID, or
// ErrChatNotFound when no record exists.
func (s *Store) ChatMembers(ctx context.Context, chatID string) ([]string, error) {
	var members []string
	err := s.session.Query(
		`SELECT member_ids FROM chats WHERE chat_id = ?`, chatID,
	).WithContext(ctx).Scan(&members)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership read on %s: %w", chatID, err)
	}
	return members, nil
}
