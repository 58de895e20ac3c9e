package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ErrConfig is returned when mailer configuration is invalid.
var ErrConfig = errors.New("notify: invalid config")

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// Observer receives one call per send attempt. Result is "ok" or a short reason.
type Observer interface {
	ObserveEmail(template, result string, elapsed time.Duration)
}

// MailerConfig configures SimulatedMailer.
type MailerConfig struct {
	// Latency is the simulated delivery delay.
	Latency time.Duration
	// From replaces DefaultFrom for messages without a sender.
	From string
}

func DefaultMailerConfig() MailerConfig {
	return MailerConfig{Latency: time.Second, From: DefaultFrom}
}

// LoadMailerConfigFromEnv reads FLAREHUB_MAIL_LATENCY and FLAREHUB_MAIL_FROM.
func LoadMailerConfigFromEnv() (MailerConfig, error) {
	cfg := DefaultMailerConfig()

	if v := strings.TrimSpace(os.Getenv("FLAREHUB_MAIL_LATENCY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return MailerConfig{}, ErrConfig
		}
		cfg.Latency = d
	}
	if v := strings.TrimSpace(os.Getenv("FLAREHUB_MAIL_FROM")); v != "" {
		if !strings.Contains(v, "@") {
			return MailerConfig{}, ErrConfig
		}
		cfg.From = v
	}
	return cfg, nil
}

// SimulatedMailer logs messages instead of delivering them and publishes an
// EmailSent event for each one.
type SimulatedMailer struct {
	cfg   MailerConfig
	log   *slog.Logger
	bus   *Bus
	obs   Observer
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// MailerOption configures SimulatedMailer.
type MailerOption func(*SimulatedMailer)

func WithLogger(l *slog.Logger) MailerOption {
	return func(m *SimulatedMailer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBus publishes EmailSent events on b.
func WithBus(b *Bus) MailerOption {
	return func(m *SimulatedMailer) { m.bus = b }
}

func WithObserver(o Observer) MailerOption {
	return func(m *SimulatedMailer) { m.obs = o }
}

// WithSleep replaces the latency wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) MailerOption {
	return func(m *SimulatedMailer) {
		if fn != nil {
			m.sleep = fn
		}
	}
}

func NewSimulatedMailer(cfg MailerConfig, opts ...MailerOption) *SimulatedMailer {
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = DefaultFrom
	}
	m := &SimulatedMailer{
		cfg:   cfg,
		log:   slog.Default(),
		sleep: sleepCtx,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Send waits the configured latency, then logs e and publishes EmailSent.
// A canceled ctx aborts before anything is logged or published.
func (m *SimulatedMailer) Send(ctx context.Context, e Email) error {
	start := time.Now()
	if e.From == "" {
		e.From = m.cfg.From
	}
	if err := e.Validate(); err != nil {
		m.observe(e.Subject, "invalid", start)
		return err
	}

	if err := m.sleep(ctx, m.cfg.Latency); err != nil {
		m.observe(e.Subject, "canceled", start)
		return err
	}

	m.log.Info("notify.email.sent",
		"to", e.To,
		"from", e.From,
		"subject", e.Subject,
		"body_len", len(e.Body),
	)

	if m.bus != nil {
		ev, err := NewEvent(TypeEmailSent, EmailSentPayload{To: e.To, Subject: e.Subject, From: e.From}, m.now())
		if err != nil {
			m.log.Warn("notify.event.build.fail", "err", err)
		} else {
			m.bus.Publish(ev)
		}
	}

	m.observe(e.Subject, "ok", start)
	return nil
}

func (m *SimulatedMailer) observe(subject, result string, start time.Time) {
	if m.obs == nil {
		return
	}
	m.obs.ObserveEmail(templateLabel(subject), result, time.Since(start))
}

// templateLabel bounds metric label cardinality to the known templates.
func templateLabel(subject string) string {
	switch subject {
	case ApplicationSubmitted("").Subject:
		return "application_submitted"
	case ApplicationApproved("", "").Subject:
		return "application_approved"
	case ApplicationRejected("", "", "").Subject:
		return "application_rejected"
	default:
		return "other"
	}
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
