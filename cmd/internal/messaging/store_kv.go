package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"flarehub/cmd/identity/ids"
	"flarehub/cmd/internal/storage"
)

const (
	defaultMaxRetained  = 1000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// thread is the document stored under one conversation key.
type thread struct {
	Seq      int64     `json:"seq"`
	Messages []Message `json:"messages"`
}

// KVStore implements MessageStore on a storage.KV, one document per
// conversation. Only the newest messages are retained.
type KVStore struct {
	kv          storage.KV
	log         *slog.Logger
	newID       func(now time.Time) (string, error)
	maxRetained int
}

// KVStoreOption configures KVStore.
type KVStoreOption func(*KVStore)

func WithStoreLogger(l *slog.Logger) KVStoreOption {
	return func(s *KVStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxRetained bounds the messages kept per conversation.
func WithMaxRetained(n int) KVStoreOption {
	return func(s *KVStore) {
		if n > 0 {
			s.maxRetained = n
		}
	}
}

// WithMessageIDs replaces the message id generator (tests).
func WithMessageIDs(fn func(now time.Time) (string, error)) KVStoreOption {
	return func(s *KVStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewKVStore(kv storage.KV, opts ...KVStoreOption) (*KVStore, error) {
	if kv == nil {
		return nil, errors.New("messaging: nil kv")
	}
	s := &KVStore{
		kv:          kv,
		log:         slog.Default(),
		newID:       ids.NewULID,
		maxRetained: defaultMaxRetained,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func threadKey(conversationID string) string {
	return storage.KeyMessages + ":" + conversationID
}

func (s *KVStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	const op = "messaging.Append"

	if strings.TrimSpace(in.ConversationID) == "" || in.SenderID == "" || in.Sender == "" {
		return AppendResult{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := s.newID(now)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var res AppendResult
	err = s.kv.Update(ctx, func(tx storage.Tx) error {
		th, err := s.read(ctx, tx, in.ConversationID)
		if err != nil {
			return err
		}

		if in.ClientMsgID != "" {
			for _, m := range th.Messages {
				if m.ClientMsgID == in.ClientMsgID {
					res = AppendResult{Stored: m, Duplicated: true}
					return nil
				}
			}
		}

		th.Seq++
		msg := Message{
			ID:          id,
			Seq:         th.Seq,
			ClientMsgID: in.ClientMsgID,
			Sender:      in.Sender,
			SenderID:    in.SenderID,
			SenderName:  in.SenderName,
			Content:     in.Content,
			Timestamp:   now,
		}
		th.Messages = append(th.Messages, msg)
		if len(th.Messages) > s.maxRetained {
			th.Messages = th.Messages[len(th.Messages)-s.maxRetained:]
		}

		b, err := json.Marshal(th)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, storage.SharedNamespace, threadKey(in.ConversationID), b); err != nil {
			return err
		}
		res = AppendResult{Stored: msg}
		return nil
	})
	if err != nil {
		return AppendResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *KVStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	const op = "messaging.History"

	if strings.TrimSpace(in.ConversationID) == "" {
		return HistoryResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing conversation"}
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	th, err := s.read(ctx, s.kv, in.ConversationID)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("%s: %w", op, err)
	}
	msgs := th.Messages
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	start := 0
	if in.AfterSeq != nil {
		after := *in.AfterSeq
		start = sort.Search(len(msgs), func(i int) bool { return msgs[i].Seq > after })
	}
	out := msgs[start:]
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return HistoryResult{Messages: out, HasMore: hasMore}, nil
}

// read returns the stored thread. A document that does not decode reads as
// an empty thread and is logged.
func (s *KVStore) read(ctx context.Context, rd storage.Reader, conversationID string) (thread, error) {
	raw, ok, err := rd.Get(ctx, storage.SharedNamespace, threadKey(conversationID))
	if err != nil {
		return thread{}, err
	}
	if !ok {
		return thread{}, nil
	}
	var th thread
	if err := json.Unmarshal(raw, &th); err != nil {
		s.log.Warn("messaging.thread.malformed", "conversation_id", conversationID, "err", err)
		return thread{}, nil
	}
	return th, nil
}
