package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"flarehub/cmd/identity/ids"

	"github.com/coder/websocket"
)

// Subprotocol is the negotiated websocket subprotocol for the notification stream.
const Subprotocol = "flarehub.notify.v1"

const (
	wsCloseGrace      = time.Second
	wsMaxPingFailures = 3
)

// WSGateway streams Bus events to websocket clients.
//
// The stream is server-to-client. Inbound frames are limited to hello
// (answered with hello.ack) and are rate limited; anything else gets an error
// event.
type WSGateway struct {
	log *slog.Logger
	bus *Bus
	cfg GatewayConfig

	patterns []string
}

// NewWSGateway constructs a gateway over bus.
func NewWSGateway(log *slog.Logger, bus *Bus, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if bus == nil {
		bus = NewBus(log)
	}
	cfg = cfg.Normalized()
	return &WSGateway{
		log:      log,
		bus:      bus,
		cfg:      cfg,
		patterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.patterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	sub := NewSubscriber(sessionID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	// shutdown leaves the bus before closing the subscriber; Send stays open.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.bus.Leave(sessionID)
			sub.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// Queue the ack before joining so it is the first frame on the wire.
	g.enqueueTyped(ctx, sub, TypeHelloAck, HelloAckPayload{SessionID: sessionID})
	g.bus.Join(sub)
	g.log.Info("ws.session.open", "session_id", sessionID)

	// A subscriber closed from outside (bus shutdown) ends the session.
	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done():
			shutdown(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case ev := <-sub.Send:
				if err := writeEvent(ctx, conn, ev, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		// Reads also service pongs for the heartbeat.
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				shutdown(websocket.StatusNormalClosure, "context done")
			case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(ctx, sub, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			g.trySendError(ctx, sub, "bad_json", "invalid JSON")
			continue
		}
		if err := ev.Validate(); err != nil {
			g.trySendError(ctx, sub, "bad_envelope", err.Error())
			continue
		}

		switch ev.Type {
		case TypeHello:
			g.enqueueTyped(ctx, sub, TypeHelloAck, HelloAckPayload{SessionID: sessionID})
		default:
			g.trySendError(ctx, sub, "unsupported", "unsupported type: "+ev.Type)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("ws.session.close", "session_id", sessionID)
}

// Shutdown closes every open session with StatusGoingAway.
func (g *WSGateway) Shutdown() {
	g.bus.Close()
}

func (g *WSGateway) trySendError(ctx context.Context, sub *Subscriber, code, msg string) {
	g.enqueueTyped(ctx, sub, TypeError, ErrorPayload{Code: code, Message: msg})
}

func (g *WSGateway) enqueueTyped(ctx context.Context, sub *Subscriber, typ string, payload any) bool {
	ev, err := NewEvent(typ, payload, time.Now().UTC())
	if err != nil {
		g.log.Warn("ws.event.build.fail", "type", typ, "err", err)
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-sub.Done():
		return false
	case sub.Send <- ev:
		return true
	default:
		return false
	}
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
