package notify

import (
	"log/slog"
	"sync"
)

const defaultSubscriberQueue = 64

// Subscriber is one consumer of Bus events.
//
// Send is never closed by the bus; done signals shutdown instead, so a
// concurrent Publish never writes to a closed channel.
type Subscriber struct {
	ID   string
	Send chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber constructs a Subscriber with a bounded queue.
func NewSubscriber(id string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = defaultSubscriberQueue
	}
	return &Subscriber{
		ID:   id,
		Send: make(chan Event, queueSize),
		done: make(chan struct{}),
	}
}

// Done is closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close is idempotent.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// Bus is an in-process broadcast fanout.
// Publish never blocks: a full or closing subscriber misses the event.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, subs: make(map[string]*Subscriber)}
}

// Join registers s. A subscriber with the same id is replaced.
func (b *Bus) Join(s *Subscriber) {
	if b == nil || s == nil || s.ID == "" {
		return
	}
	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()

	b.log.Debug("notify.subscriber.join", "subscriber_id", s.ID)
}

// Leave removes the subscriber and signals its shutdown.
func (b *Bus) Leave(id string) {
	if b == nil || id == "" {
		return
	}

	b.mu.Lock()
	s := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	// Removed before Close so no publisher still holds it.
	if s != nil {
		s.Close()
	}
	b.log.Debug("notify.subscriber.leave", "subscriber_id", id)
}

// Close removes every subscriber and signals their shutdown.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.log.Debug("notify.bus.close", "subscribers", len(subs))
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every live subscriber and returns how many accepted it.
func (b *Bus) Publish(ev Event) int {
	if b == nil {
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, s := range b.subs {
		select {
		case <-s.Done():
			continue
		default:
		}

		select {
		case s.Send <- ev:
			delivered++
		default:
			b.log.Debug("notify.publish.drop", "subscriber_id", s.ID, "type", ev.Type)
		}
	}
	return delivered
}
