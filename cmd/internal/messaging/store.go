package messaging

import (
	"context"
	"time"
)

// Message is one stored conversation entry.
type Message struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
	Sender      Side      `json:"sender"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageStore persists and pages conversation messages.
//
// Append is idempotent per (conversation, ClientMsgID) while the original is
// retained, and sequences are monotonic per conversation with no gaps for
// duplicates. History is ordered by Seq ascending.
type MessageStore interface {
	Append(ctx context.Context, in AppendInput) (AppendResult, error)
	History(ctx context.Context, in HistoryInput) (HistoryResult, error)
}

// AppendInput describes one message to store.
type AppendInput struct {
	ConversationID string
	ClientMsgID    string
	Sender         Side
	SenderID       string
	SenderName     string
	Content        string
	Now            time.Time
}

type AppendResult struct {
	Stored     Message
	Duplicated bool
}

// HistoryInput selects a page. AfterSeq nil starts from the oldest retained message.
type HistoryInput struct {
	ConversationID string
	AfterSeq       *int64
	Limit          int
}

type HistoryResult struct {
	Messages []Message
	HasMore  bool
}
