package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flarehub/cmd/identity/ids"
)

// Wire protocol constants for the notification stream.
const (
	Version = 1

	TypeHello     = "hello"
	TypeHelloAck  = "hello.ack"
	TypeEmailSent = "email_sent"
	TypeError     = "error"
)

// Event is the envelope written to notification subscribers.
type Event struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	return nil
}

// EmailSentPayload is the toast content for a delivered email.
type EmailSentPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	From    string `json:"from"`
}

type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent builds an envelope around payload.
func NewEvent(typ string, payload any, now time.Time) (Event, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Event{}, err
	}
	return Event{V: Version, Type: typ, ID: id, TS: now, Payload: b}, nil
}
