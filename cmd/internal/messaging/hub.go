package messaging

import (
	"log/slog"
	"sync"

	"flarehub/cmd/internal/notify"
)

// Hub owns one notify.Bus per conversation with live listeners.
// A room is created on first join and dropped when its last listener leaves.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*notify.Bus
	closed bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, rooms: make(map[string]*notify.Bus)}
}

// Join adds sub to the conversation room. It reports false once the hub is closed.
func (h *Hub) Join(conversationID string, sub *notify.Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = notify.NewBus(h.log)
		h.rooms[conversationID] = room
	}
	room.Join(sub)
	h.log.Debug("messaging.room.join", "conversation_id", conversationID, "listener_id", sub.ID)
	return true
}

// Leave removes the listener and signals its shutdown.
func (h *Hub) Leave(conversationID, listenerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	room.Leave(listenerID)
	if room.Len() == 0 {
		delete(h.rooms, conversationID)
	}
}

// Publish delivers ev to every listener of the conversation and returns how
// many accepted it. It never blocks.
func (h *Hub) Publish(conversationID string, ev notify.Event) int {
	h.mu.Lock()
	room := h.rooms[conversationID]
	h.mu.Unlock()
	return room.Publish(ev)
}

// Listeners returns the number of live listeners of a conversation.
func (h *Hub) Listeners(conversationID string) int {
	h.mu.Lock()
	room := h.rooms[conversationID]
	h.mu.Unlock()
	return room.Len()
}

// Close ends every room; their listeners observe Done.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*notify.Bus)
	h.closed = true
	h.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
}
