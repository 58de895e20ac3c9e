package guard

import (
	"context"
	"testing"

	"flarehub/cmd/identity"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/storage"
)

type recordingNav struct{ locations []string }

func (r *recordingNav) Navigate(loc string) { r.locations = append(r.locations, loc) }

func newStore(t *testing.T, clientID string) (*session.Store, *identity.KVRepository) {
	t.Helper()

	repo, err := identity.NewKVRepository(storage.NewMemoryKV())
	if err != nil {
		t.Fatalf("NewKVRepository: %v", err)
	}
	cfg := session.DefaultConfig()
	cfg.Latency = 0
	s, err := session.NewStore(cfg, repo, clientID)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, repo
}

func TestWatcher_WaitsForRestoreThenRedirects(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t, "c")
	nav := &recordingNav{}
	w := Watch(s, RequireRole(identity.RoleStartup), nav)
	defer w.Stop()

	if w.Decision().Kind != Wait || len(nav.locations) != 0 {
		t.Fatalf("must not navigate while loading: %+v %v", w.Decision(), nav.locations)
	}

	s.Restore(context.Background())
	if len(nav.locations) != 1 || nav.locations[0] != LoginPath {
		t.Fatalf("expected single login navigation, got %v", nav.locations)
	}
}

func TestWatcher_SignupScenarioRedirectsToPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newStore(t, "c")
	s.Restore(ctx)

	nav := &recordingNav{}
	w := Watch(s, RequireRole(identity.RoleStartup), nav)
	defer w.Stop()

	if _, err := s.Signup(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	want := []string{LoginPath, PendingPath}
	if len(nav.locations) != 2 || nav.locations[0] != want[0] || nav.locations[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, nav.locations)
	}
}

func TestWatcher_AdminScenarioRenders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newStore(t, "c")
	s.Restore(ctx)
	if _, err := s.Login(ctx, "admin@flarehub.com", "anything"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	nav := &recordingNav{}
	w := Watch(s, RequireRole(identity.RoleAdmin), nav)
	defer w.Stop()

	if w.Decision().Kind != Render || len(nav.locations) != 0 {
		t.Fatalf("expected render without navigation, got %+v %v", w.Decision(), nav.locations)
	}
}

type staticSource struct {
	snap session.Snapshot
	subs []func(session.Snapshot)
}

func (s *staticSource) Snapshot() session.Snapshot { return s.snap }

func (s *staticSource) Subscribe(fn func(session.Snapshot)) func() {
	s.subs = append(s.subs, fn)
	return func() { s.subs = nil }
}

func (s *staticSource) emit() {
	for _, fn := range s.subs {
		fn(s.snap)
	}
}

func TestWatcher_DeduplicatesRepeatedRedirects(t *testing.T) {
	t.Parallel()

	src := &staticSource{snap: session.Snapshot{State: session.StateUnauthenticated}}
	nav := &recordingNav{}
	w := Watch(src, AnyRole(), nav)

	for i := 0; i < 5; i++ {
		src.emit()
	}
	if len(nav.locations) != 1 {
		t.Fatalf("expected one navigation, got %v", nav.locations)
	}

	// A render in between resets de-duplication.
	src.snap = authed(identity.Admin{})
	src.emit()
	src.snap = session.Snapshot{State: session.StateUnauthenticated}
	src.emit()
	if len(nav.locations) != 2 {
		t.Fatalf("expected a second navigation after render, got %v", nav.locations)
	}

	w.Stop()
	src.emit()
	if len(nav.locations) != 2 {
		t.Fatalf("stopped watcher still navigated")
	}
}

func TestWatcher_LogoutNavigatesToLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newStore(t, "c")
	if _, err := s.Login(ctx, "startup@example.com", "x"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var got []string
	w := Watch(s, RequireRole(identity.RoleStartup), NavigatorFunc(func(loc string) { got = append(got, loc) }))
	defer w.Stop()

	if _, err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if len(got) != 1 || got[0] != LoginPath {
		t.Fatalf("expected login navigation, got %v", got)
	}
}
