// Command notify-smoke is a CI-friendly smoke test for the notification gateway.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello.ack session establishment
//   - hello round trip
//   - an application submitted over HTTP surfaces as an email_sent toast
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"flarehub/cmd/internal/notify"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 16

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		email   = flag.String("email", "", "Applicant email (default: generated)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}
	if *email == "" {
		*email = fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	}

	root := context.Background()

	conn, sessionID := mustConnect(root, wsURL(base), *origin, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	if *verbose {
		fmt.Printf("connected: session=%s origin=%q\n", sessionID, *origin)
	}

	mustHello(root, conn, sessionID, *timeout)

	appID := mustApply(root, base.String(), *email, *timeout)
	if *verbose {
		fmt.Printf("applied: application=%s email=%s\n", appID, *email)
	}

	toast := mustAwaitEmail(root, conn, *email, *timeout)
	fmt.Printf("OK: session=%s application=%s subject=%q from=%s\n", sessionID, appID, toast.Subject, toast.From)
}

func wsURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws/notifications"
	return u.String()
}

func mustConnect(parent context.Context, target, origin string, stepTimeout time.Duration) (*websocket.Conn, string) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{notify.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("dial %s: %v", target, err)
	}
	if conn.Subprotocol() != notify.Subprotocol {
		_ = conn.CloseNow()
		fatalf("subprotocol mismatch: got %q", conn.Subprotocol())
	}
	conn.SetReadLimit(maxReadBytes)

	ev := mustRead(ctx, conn)
	if ev.Type != notify.TypeHelloAck {
		fatalf("expected %s first, got %s", notify.TypeHelloAck, ev.Type)
	}
	var ack notify.HelloAckPayload
	mustDecode(ev.Payload, &ack)
	if ack.SessionID == "" {
		fatalf("hello.ack without session_id")
	}
	return conn, ack.SessionID
}

func mustHello(parent context.Context, conn *websocket.Conn, sessionID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	hello, err := notify.NewEvent(notify.TypeHello, struct{}{}, time.Now().UTC())
	if err != nil {
		fatalf("build hello: %v", err)
	}
	b, _ := json.Marshal(hello)
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write hello: %v", err)
	}

	for {
		ev := mustRead(ctx, conn)
		switch ev.Type {
		case notify.TypeHelloAck:
			var ack notify.HelloAckPayload
			mustDecode(ev.Payload, &ack)
			if ack.SessionID != sessionID {
				fatalf("hello.ack session mismatch: %s != %s", ack.SessionID, sessionID)
			}
			return
		case notify.TypeError:
			fatalf("server error: %s", ev.Payload)
		}
	}
}

func mustApply(parent context.Context, base, email string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{
		"startupName":     "Smoke Labs",
		"description":     "Gateway smoke test",
		"sector":          "technology",
		"stage":           "idea",
		"teamSize":        "1",
		"location":        "remote",
		"founderName":     "Smoke",
		"email":           email,
		"password":        "smoke-test",
		"confirmPassword": "smoke-test",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/apply", bytes.NewReader(body))
	if err != nil {
		fatalf("build apply: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("apply: %v", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if res.StatusCode != http.StatusCreated {
		fatalf("apply: status %d: %s", res.StatusCode, raw)
	}

	var out struct {
		Application struct {
			ID string `json:"id"`
		} `json:"application"`
	}
	mustDecode(raw, &out)
	return out.Application.ID
}

// mustAwaitEmail waits past the simulated mail latency for the toast addressed to email.
func mustAwaitEmail(parent context.Context, conn *websocket.Conn, email string, stepTimeout time.Duration) notify.EmailSentPayload {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		ev := mustRead(ctx, conn)
		if ev.Type != notify.TypeEmailSent {
			continue
		}
		var p notify.EmailSentPayload
		mustDecode(ev.Payload, &p)
		if p.To == email {
			return p
		}
	}
}

func mustRead(ctx context.Context, conn *websocket.Conn) notify.Event {
	_, data, err := conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("timed out waiting for event")
		}
		fatalf("read: %v (close=%d)", err, websocket.CloseStatus(err))
	}
	var ev notify.Event
	mustDecode(data, &ev)
	if err := ev.Validate(); err != nil {
		fatalf("invalid event: %v", err)
	}
	return ev
}

func mustDecode(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		fatalf("decode %T: %v (%s)", v, err, data)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
