package guard

import (
	"sync"

	"flarehub/cmd/internal/auth/session"
)

// Navigator performs navigation side effects.
type Navigator interface {
	Navigate(location string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(location string)

func (f NavigatorFunc) Navigate(location string) { f(location) }

// Source is the part of session.Store a Watcher needs.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

// Watcher keeps a protected view in sync with a session.
//
// It evaluates on mount and on every session change. A redirect identical to
// the previous one is not re-issued, so repeated evaluation never stacks
// navigations.
type Watcher struct {
	req Requirement
	nav Navigator

	mu           sync.Mutex
	last         Decision
	lastRedirect string
	unsubscribe  func()
}

// Watch mounts a Watcher on src and performs the initial evaluation.
func Watch(src Source, req Requirement, nav Navigator) *Watcher {
	w := &Watcher{req: req, nav: nav}
	w.unsubscribe = src.Subscribe(w.evaluate)
	w.evaluate(src.Snapshot())
	return w
}

// Decision returns the most recent decision.
func (w *Watcher) Decision() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Stop detaches the watcher from its source.
func (w *Watcher) Stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
}

func (w *Watcher) evaluate(snap session.Snapshot) {
	d := Evaluate(snap, w.req)

	w.mu.Lock()
	w.last = d
	navigate := ""
	if d.IsRedirect() {
		if d.Location != w.lastRedirect {
			navigate = d.Location
		}
		w.lastRedirect = d.Location
	} else {
		w.lastRedirect = ""
	}
	w.mu.Unlock()

	if navigate != "" && w.nav != nil {
		w.nav.Navigate(navigate)
	}
}
