package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveEmail(template, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, template+":"+result)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestSimulatedMailer_SendPublishesEvent(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	sub := NewSubscriber("toast", 4)
	bus.Join(sub)
	obs := &recordingObserver{}

	var slept time.Duration
	m := NewSimulatedMailer(DefaultMailerConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBus(bus),
		WithObserver(obs),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			slept = d
			return ctx.Err()
		}),
	)

	if err := m.Send(context.Background(), ApplicationSubmitted("Ann").To("a@x.com")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if slept != time.Second {
		t.Fatalf("expected default 1s latency, got %v", slept)
	}

	select {
	case ev := <-sub.Send:
		if ev.Type != TypeEmailSent {
			t.Fatalf("unexpected type %q", ev.Type)
		}
		var p EmailSentPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		want := EmailSentPayload{To: "a@x.com", Subject: "Application Received", From: DefaultFrom}
		if p != want {
			t.Fatalf("payload: got %+v want %+v", p, want)
		}
	default:
		t.Fatalf("expected an email_sent event")
	}

	if len(obs.calls) != 1 || obs.calls[0] != "application_submitted:ok" {
		t.Fatalf("unexpected observations %v", obs.calls)
	}
}

func TestSimulatedMailer_ExplicitFromWins(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	sub := NewSubscriber("toast", 4)
	bus.Join(sub)

	m := NewSimulatedMailer(MailerConfig{From: "team@flarehub.com"}, WithBus(bus), WithSleep(noSleep))
	if err := m.Send(context.Background(), Email{To: "a@x.com", Subject: "Hi", From: "me@x.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ev := <-sub.Send
	var p EmailSentPayload
	_ = json.Unmarshal(ev.Payload, &p)
	if p.From != "me@x.com" {
		t.Fatalf("expected explicit sender, got %q", p.From)
	}

	if err := m.Send(context.Background(), Email{To: "a@x.com", Subject: "Hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ev = <-sub.Send
	_ = json.Unmarshal(ev.Payload, &p)
	if p.From != "team@flarehub.com" {
		t.Fatalf("expected configured sender, got %q", p.From)
	}
}

func TestSimulatedMailer_CanceledPublishesNothing(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	sub := NewSubscriber("toast", 4)
	bus.Join(sub)
	obs := &recordingObserver{}

	m := NewSimulatedMailer(DefaultMailerConfig(), WithBus(bus), WithObserver(obs), WithSleep(noSleep))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Send(ctx, ApplicationApproved("Ann", "Acme").To("a@x.com"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	select {
	case ev := <-sub.Send:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
	if len(obs.calls) != 1 || obs.calls[0] != "application_approved:canceled" {
		t.Fatalf("unexpected observations %v", obs.calls)
	}
}

func TestSimulatedMailer_InvalidEmail(t *testing.T) {
	t.Parallel()

	m := NewSimulatedMailer(DefaultMailerConfig(), WithSleep(noSleep))
	if err := m.Send(context.Background(), Email{Subject: "x"}); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
}

func TestLoadMailerConfigFromEnv(t *testing.T) {
	t.Setenv("FLAREHUB_MAIL_LATENCY", "250ms")
	t.Setenv("FLAREHUB_MAIL_FROM", "ops@flarehub.com")

	cfg, err := LoadMailerConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadMailerConfigFromEnv: %v", err)
	}
	if cfg.Latency != 250*time.Millisecond || cfg.From != "ops@flarehub.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("FLAREHUB_MAIL_LATENCY", "soon")
	if _, err := LoadMailerConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
