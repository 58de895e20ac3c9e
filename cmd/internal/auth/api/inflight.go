package authapi

import "sync"

// inflight tracks clients with a mutating auth operation in progress.
// Stores are per request, so the busy flag alone does not span requests.
type inflight struct {
	mu      sync.Mutex
	clients map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{clients: make(map[string]struct{})}
}

// begin marks clientID busy. ok is false when it already was.
func (f *inflight) begin(clientID string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.clients[clientID]; busy {
		return nil, false
	}
	f.clients[clientID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.clients, clientID)
			f.mu.Unlock()
		})
	}, true
}
