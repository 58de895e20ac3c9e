package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"flarehub/cmd/identity"
	"flarehub/cmd/internal/notify"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Observer receives one call per send. Result is "ok", "duplicate" or a short reason.
type Observer interface {
	ObserveMessage(side, result string)
}

// Service stores conversation messages and fans them out to live listeners.
type Service struct {
	log   *slog.Logger
	cfg   Config
	store MessageStore
	dir   Directory
	hub   *Hub
	obs   Observer

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.obs = o }
}

// WithSleep replaces the latency wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store MessageStore, dir Directory, cfg Config, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("messaging: nil store")
	}
	if dir == nil {
		return nil, errors.New("messaging: nil directory")
	}
	if cfg.Latency < 0 {
		return nil, ErrConfig
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	s := &Service{
		log:   slog.Default(),
		cfg:   cfg,
		store: store,
		dir:   dir,
		sleep: sleepCtx,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.hub = NewHub(s.log)
	return s, nil
}

// Hub returns the live fanout.
func (s *Service) Hub() *Hub { return s.hub }

// Shutdown ends every live listener.
func (s *Service) Shutdown() { s.hub.Close() }

// Open resolves the conversation between caller and peerID.
func (s *Service) Open(ctx context.Context, caller identity.Identity, peerID string) (Conversation, identity.Identity, error) {
	return Open(ctx, s.dir, caller, peerID)
}

// SendInput is the message form.
type SendInput struct {
	ClientMsgID string `json:"clientMsgId"`
	Content     string `json:"content"`
}

func (in SendInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content, validation.Required, validation.RuneLength(1, maxContentChars)),
		validation.Field(&in.ClientMsgID, validation.Length(0, 64)),
	)
}

func trimSend(in SendInput) SendInput {
	in.ClientMsgID = strings.TrimSpace(in.ClientMsgID)
	in.Content = strings.TrimSpace(in.Content)
	return in
}

// Send waits the configured latency, stores the message and announces it to
// the conversation room. A canceled ctx aborts before anything is stored. A
// repeated ClientMsgID returns the original message and announces nothing.
func (s *Service) Send(ctx context.Context, conv Conversation, sender identity.Identity, in SendInput) (AppendResult, error) {
	const op = "messaging.Send"

	side, ok := conv.SideOf(sender.ID)
	if !ok {
		s.observe("none", "forbidden")
		return AppendResult{}, OpError{Op: op, Kind: ErrForbidden}
	}
	in = trimSend(in)
	if err := in.Validate(); err != nil {
		s.observe(side, "invalid")
		return AppendResult{}, err
	}

	if err := s.sleep(ctx, s.cfg.Latency); err != nil {
		s.observe(side, "canceled")
		return AppendResult{}, err
	}

	res, err := s.store.Append(ctx, AppendInput{
		ConversationID: conv.ID(),
		ClientMsgID:    in.ClientMsgID,
		Sender:         side,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		Content:        in.Content,
		Now:            s.now(),
	})
	if err != nil {
		s.observe(side, "error")
		return AppendResult{}, err
	}
	if res.Duplicated {
		s.observe(side, "duplicate")
		return res, nil
	}

	s.log.Info("messaging.message.sent",
		"conversation_id", conv.ID(),
		"message_id", res.Stored.ID,
		"seq", res.Stored.Seq,
		"side", string(side),
	)
	s.announce(conv, res.Stored)
	s.observe(side, "ok")
	return res, nil
}

// History returns a page of the conversation for one of its members.
func (s *Service) History(ctx context.Context, conv Conversation, viewer identity.Identity, afterSeq *int64, limit int) (HistoryResult, error) {
	if _, ok := conv.SideOf(viewer.ID); !ok {
		return HistoryResult{}, OpError{Op: "messaging.History", Kind: ErrForbidden}
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.store.History(ctx, HistoryInput{ConversationID: conv.ID(), AfterSeq: afterSeq, Limit: limit})
}

func (s *Service) announce(conv Conversation, m Message) {
	ev, err := notify.NewEvent(TypeMessage, MessagePayload{ConversationID: conv.ID(), Message: m}, s.now())
	if err != nil {
		s.log.Warn("messaging.event.build.fail", "err", err)
		return
	}
	s.hub.Publish(conv.ID(), ev)
}

func (s *Service) observe(side Side, result string) {
	if s.obs == nil {
		return
	}
	s.obs.ObserveMessage(string(side), result)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
