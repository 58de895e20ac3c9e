package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"flarehub/cmd/identity/ids"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/notify"

	"github.com/coder/websocket"
	validation "github.com/go-ozzo/ozzo-validation"
)

// Subprotocol is the negotiated websocket subprotocol for live conversations.
const Subprotocol = "flarehub.messages.v1"

const (
	liveMaxFrameBytes   = 16 << 10
	liveCloseGrace      = time.Second
	liveMaxPingFailures = 3
)

// live streams one conversation to a websocket.
//
// The socket carries a guard.Watcher on the request's session and re-reads
// the session every SessionRecheck. When the guard stops rendering (logout
// from another tab, role change) the client gets a navigate frame with the
// redirect target and the socket closes with StatusPolicyViolation.
func (h *Handler) live(req guard.Requirement) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := h.identity(w, r)
		if !ok {
			return
		}
		store, _ := session.StoreFromContext(r.Context())

		conv, _, err := h.svc.Open(r.Context(), caller, r.PathValue("id"))
		if err != nil {
			h.writeError(w, "messaging.live.open", err)
			return
		}

		if err := h.cfg.Live.CheckOrigin(r); err != nil {
			h.log.Info("messaging.ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:       []string{Subprotocol},
			OriginPatterns:     h.cfg.Live.OriginPatterns(),
			InsecureSkipVerify: h.cfg.Live.DevInsecure,
		})
		if err != nil {
			h.log.Error("messaging.ws.accept.fail", "err", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

		if sp := conn.Subprotocol(); sp != Subprotocol {
			h.log.Info("messaging.ws.reject.subprotocol", "got", sp, "want", Subprotocol)
			_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
			return
		}
		conn.SetReadLimit(liveMaxFrameBytes)

		listenerID, err := ids.NewULID(time.Now().UTC())
		if err != nil {
			h.log.Error("messaging.ws.listener_id.fail", "err", err)
			_ = conn.Close(websocket.StatusInternalError, "internal error")
			return
		}
		sub := notify.NewSubscriber(listenerID, h.cfg.Live.SendQueueSize)
		convID := conv.ID()
		hub := h.svc.Hub()

		// Detached from r so a navigate frame can still be written while shutting down.
		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()

		var closeOnce sync.Once
		shutdown := func(code websocket.StatusCode, reason string) {
			closeOnce.Do(func() {
				hub.Leave(convID, listenerID)
				sub.Close()
				_ = conn.Close(code, reason)
				cancel()
			})
		}

		h.enqueue(ctx, sub, notify.TypeHelloAck, notify.HelloAckPayload{SessionID: listenerID})
		if !hub.Join(convID, sub) {
			shutdown(websocket.StatusGoingAway, "server shutdown")
			return
		}
		h.log.Info("messaging.ws.open", "conversation_id", convID, "listener_id", listenerID)

		watcher := guard.Watch(store, req, guard.NavigatorFunc(func(location string) {
			h.log.Info("messaging.ws.session_ended", "conversation_id", convID, "listener_id", listenerID, "location", location)
			if ev, err := notify.NewEvent(TypeNavigate, NavigatePayload{Location: location}, time.Now().UTC()); err == nil {
				_ = writeFrame(ctx, conn, ev, h.cfg.Live.WriteTimeout)
			}
			shutdown(websocket.StatusPolicyViolation, "session ended")
		}))
		defer watcher.Stop()

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
					if err := writeFrame(ctx, conn, ev, h.cfg.Live.WriteTimeout); err != nil {
						h.log.Info("messaging.ws.write.fail", "listener_id", listenerID, "close_status", websocket.CloseStatus(err), "err", err)
						shutdown(websocket.StatusAbnormalClosure, "write failed")
						return
					}
				}
			}
		}()

		tickerDone := make(chan struct{})
		go func() {
			defer close(tickerDone)
			h.keepAlive(ctx, conn, store, listenerID, shutdown)
		}()

		rl := notify.NewRateLimiter(h.cfg.Live.RateEvents, h.cfg.Live.RateWindow)

	readLoop:
		for {
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
					h.log.Info("messaging.ws.read.fail", "listener_id", listenerID, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "read failed")
				}
				break readLoop
			}

			if !rl.Allow(time.Now().UTC()) {
				h.sendError(ctx, sub, "rate_limited", "too many events")
				shutdown(websocket.StatusPolicyViolation, "rate limited")
				break readLoop
			}

			var ev notify.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				h.sendError(ctx, sub, "bad_json", "invalid JSON")
				continue
			}
			if err := ev.Validate(); err != nil {
				h.sendError(ctx, sub, "bad_envelope", err.Error())
				continue
			}

			switch ev.Type {
			case notify.TypeHello:
				h.enqueue(ctx, sub, notify.TypeHelloAck, notify.HelloAckPayload{SessionID: listenerID})
			case TypeMessageSend:
				h.onSend(ctx, sub, conv, store, ev)
			default:
				h.sendError(ctx, sub, "unsupported", "unsupported type: "+ev.Type)
			}
		}

		shutdown(websocket.StatusNormalClosure, "bye")
		<-writerDone

		select {
		case <-tickerDone:
		case <-time.After(liveCloseGrace):
		}
		h.log.Info("messaging.ws.close", "conversation_id", convID, "listener_id", listenerID)
	})
}

// keepAlive pings the peer and re-reads the session until ctx ends.
func (h *Handler) keepAlive(ctx context.Context, conn *websocket.Conn, store *session.Store, listenerID string, shutdown func(websocket.StatusCode, string)) {
	ping := time.NewTicker(h.cfg.Live.HeartbeatEvery)
	defer ping.Stop()
	recheck := time.NewTicker(h.cfg.SessionRecheck)
	defer recheck.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-recheck.C:
			store.Resync(ctx)
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, h.cfg.Live.HeartbeatTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			h.log.Info("messaging.ws.ping.fail", "listener_id", listenerID, "failures", failures, "err", err)
			if failures >= liveMaxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// onSend stores an inbound message.send and acks it to the sender. The
// stored message reaches every listener through the hub.
func (h *Handler) onSend(ctx context.Context, sub *notify.Subscriber, conv Conversation, store *session.Store, ev notify.Event) {
	var p SendPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		h.sendError(ctx, sub, "bad_payload", "invalid message.send payload")
		return
	}
	snap := store.Snapshot()
	if !snap.Authenticated() {
		h.sendError(ctx, sub, "unauthenticated", "session ended")
		return
	}

	res, err := h.svc.Send(ctx, conv, snap.Identity, SendInput{ClientMsgID: p.ClientMsgID, Content: p.Content})
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			h.sendError(ctx, sub, "invalid_request", verrs.Error())
		case errors.Is(err, ErrForbidden):
			h.sendError(ctx, sub, "forbidden", "not a member of this conversation")
		default:
			h.log.Error("messaging.ws.send.fail", "listener_id", sub.ID, "err", err)
			h.sendError(ctx, sub, "send_failed", "message not stored")
		}
		return
	}
	h.enqueue(ctx, sub, TypeMessageAck, AckPayload{
		ClientMsgID: res.Stored.ClientMsgID,
		MessageID:   res.Stored.ID,
		Seq:         res.Stored.Seq,
		Duplicated:  res.Duplicated,
	})
}

func (h *Handler) sendError(ctx context.Context, sub *notify.Subscriber, code, msg string) {
	h.enqueue(ctx, sub, notify.TypeError, notify.ErrorPayload{Code: code, Message: msg})
}

func (h *Handler) enqueue(ctx context.Context, sub *notify.Subscriber, typ string, payload any) bool {
	ev, err := notify.NewEvent(typ, payload, time.Now().UTC())
	if err != nil {
		h.log.Warn("messaging.ws.event.build.fail", "type", typ, "err", err)
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

func writeFrame(parent context.Context, conn *websocket.Conn, ev notify.Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
