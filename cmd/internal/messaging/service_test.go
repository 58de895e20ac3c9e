package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"flarehub/cmd/internal/notify"

	validation "github.com/go-ozzo/ozzo-validation"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveMessage(side, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, side+"/"+result)
}

func (o *recordingObserver) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.calls) == 0 {
		return ""
	}
	return o.calls[len(o.calls)-1]
}

type serviceFixture struct {
	svc    *Service
	store  *KVStore
	obs    *recordingObserver
	slept  *[]time.Duration
	conv   Conversation
	stamps time.Time
}

func newServiceFixture(t *testing.T, latency time.Duration) *serviceFixture {
	t.Helper()

	store, _ := newMemoryStore(t)
	obs := &recordingObserver{}
	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.Latency = latency
	svc, err := NewService(store, testDirectory(), cfg,
		WithLogger(discardLogger()),
		WithObserver(obs),
		WithClock(func() time.Time { return now }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return ctx.Err()
		}),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Shutdown)

	return &serviceFixture{
		svc:    svc,
		store:  store,
		obs:    obs,
		slept:  &slept,
		conv:   Conversation{MentorID: mentorMo.ID, StartupID: startupAcme.ID},
		stamps: now,
	}
}

func TestService_SendWaitsLatencyThenStores(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 750*time.Millisecond)
	res, err := f.svc.Send(context.Background(), f.conv, startupAcme, SendInput{Content: "  we shipped the beta  "})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*f.slept) != 1 || (*f.slept)[0] != 750*time.Millisecond {
		t.Fatalf("expected one latency wait, got %v", *f.slept)
	}
	m := res.Stored
	if m.Content != "we shipped the beta" || m.Sender != SideStartup || m.SenderName != "Acme" {
		t.Fatalf("unexpected stored message %+v", m)
	}
	if !m.Timestamp.Equal(f.stamps) {
		t.Fatalf("timestamp=%v want %v", m.Timestamp, f.stamps)
	}
	if got := f.obs.last(); got != "startup/ok" {
		t.Fatalf("observer=%q", got)
	}
}

func TestService_CanceledSendStoresNothing(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Send(ctx, f.conv, mentorMo, SendInput{Content: "lost"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	page, err := f.svc.History(context.Background(), f.conv, mentorMo, nil, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("canceled send was stored: %+v", page.Messages)
	}
	if got := f.obs.last(); got != "mentor/canceled" {
		t.Fatalf("observer=%q", got)
	}
}

func TestService_OutsidersAreForbidden(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 0)
	ctx := context.Background()

	for _, who := range []string{mentorAda.ID, adminRoot.ID} {
		caller := testDirectory()[who]
		if _, err := f.svc.Send(ctx, f.conv, caller, SendInput{Content: "hi"}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s send: expected forbidden, got %v", who, err)
		}
		if _, err := f.svc.History(ctx, f.conv, caller, nil, 0); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s history: expected forbidden, got %v", who, err)
		}
	}
	if len(*f.slept) != 0 {
		t.Fatalf("forbidden sends must not wait")
	}
	if got := f.obs.last(); got != "none/forbidden" {
		t.Fatalf("observer=%q", got)
	}
}

func TestService_SendValidatesContent(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 0)
	ctx := context.Background()

	cases := map[string]SendInput{
		"blank":      {Content: "   "},
		"too long":   {Content: strings.Repeat("x", maxContentChars+1)},
		"long msgid": {Content: "ok", ClientMsgID: strings.Repeat("c", 65)},
	}
	for name, in := range cases {
		_, err := f.svc.Send(ctx, f.conv, mentorMo, in)
		var verr validation.Errors
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation errors, got %v", name, err)
		}
	}

	// Multi-byte content is bounded by characters, not bytes.
	if _, err := f.svc.Send(ctx, f.conv, mentorMo, SendInput{Content: strings.Repeat("é", maxContentChars)}); err != nil {
		t.Fatalf("max length content rejected: %v", err)
	}
}

func TestService_AnnouncesToRoomOnce(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, 0)
	ctx := context.Background()

	member := notify.NewSubscriber("listener-1", 8)
	other := notify.NewSubscriber("listener-2", 8)
	if !f.svc.Hub().Join(f.conv.ID(), member) {
		t.Fatalf("join refused")
	}
	f.svc.Hub().Join("m2:s1", other)

	first, err := f.svc.Send(ctx, f.conv, mentorMo, SendInput{ClientMsgID: "c-1", Content: "office hours at 3?"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	dup, err := f.svc.Send(ctx, f.conv, mentorMo, SendInput{ClientMsgID: "c-1", Content: "office hours at 3?"})
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !dup.Duplicated || dup.Stored.ID != first.Stored.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Stored.ID, dup)
	}

	select {
	case ev := <-member.Send:
		if ev.Type != TypeMessage {
			t.Fatalf("type=%q", ev.Type)
		}
		var p MessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.ConversationID != "m1:s1" || p.Message.ID != first.Stored.ID {
			t.Fatalf("unexpected payload %+v", p)
		}
	default:
		t.Fatalf("member did not receive the message")
	}
	if n := len(member.Send); n != 0 {
		t.Fatalf("duplicate was announced (%d extra frames)", n)
	}
	if n := len(other.Send); n != 0 {
		t.Fatalf("message leaked to another conversation")
	}
	if got := f.obs.last(); got != "mentor/duplicate" {
		t.Fatalf("observer=%q", got)
	}
}

func TestNewService_RejectsNegativeLatency(t *testing.T) {
	t.Parallel()

	store, _ := newMemoryStore(t)
	cfg := DefaultConfig()
	cfg.Latency = -time.Second
	if _, err := NewService(store, testDirectory(), cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FLAREHUB_MESSAGE_LATENCY", "0s")
	t.Setenv("FLAREHUB_MESSAGE_SESSION_RECHECK", "250ms")
	t.Setenv("FLAREHUB_MESSAGE_HISTORY_LIMIT", "20")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Latency != 0 || cfg.SessionRecheck != 250*time.Millisecond || cfg.HistoryLimit != 20 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("FLAREHUB_MESSAGE_LATENCY", "-1s")
	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
