package model

import "time"

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// SubmissionEvent is the raw client submission carried on the ingestion
// channel. It is never persisted as-is.
type SubmissionEvent struct {
	ChatID   string `json:"chatId"`
	Text     string `json:"text"`
	SenderID string `json:"senderId"`
	ClientID string `json:"clientId,omitempty"`
	TempID   string `json:"tempId,omitempty"`
}

// HasDedupKey reports whether the submission carries a full (clientId, tempId)
// idempotency key. A partial key counts as no key.
func (e SubmissionEvent) HasDedupKey() bool {
	return e.ClientID != "" && e.TempID != ""
}

// Message is an enriched, sequenced message. Its JSON form is the wire format
// on the delivery channel and on session pushes.
type Message struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Seq       int64     `json:"sequence_number"`
	CreatedAt time.Time `json:"createdAt"`
	ClientID  string    `json:"clientId,omitempty"`
	TempID    string    `json:"tempId,omitempty"`
}

type Chat struct {
	ID        string   `json:"_id"`
	Type      ChatType `json:"type"`
	MemberIDs []string `json:"memberIds"`
}
