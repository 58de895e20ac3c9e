package messaging

// Live frame types. Frames use the notify.Event envelope.
const (
	TypeMessage     = "message"
	TypeMessageSend = "message.send"
	TypeMessageAck  = "message.ack"
	TypeNavigate    = "navigate"
)

// MessagePayload announces a stored message to the conversation room.
type MessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// SendPayload is the inbound message.send frame.
type SendPayload struct {
	ClientMsgID string `json:"clientMsgId"`
	Content     string `json:"content"`
}

// AckPayload answers message.send to the sender only.
type AckPayload struct {
	ClientMsgID string `json:"clientMsgId"`
	MessageID   string `json:"messageId"`
	Seq         int64  `json:"seq"`
	Duplicated  bool   `json:"duplicated"`
}

// NavigatePayload tells a live client its view is gone and where to go.
type NavigatePayload struct {
	Location string `json:"location"`
}
