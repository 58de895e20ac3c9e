package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flarehub/cmd/identity"
	"flarehub/cmd/identity/ids"
)

// Observer receives one call per finished operation. Result is "ok" or a short reason.
type Observer interface {
	ObserveSessionOp(op, result string, elapsed time.Duration)
}

// Store owns the current identity of a single client.
//
// Concurrency: state is guarded by mu. Login, Signup and Logout are mutually
// exclusive through the busy flag; a second call while one is in flight
// fails fast with ErrBusy.
type Store struct {
	cfg      Config
	repo     identity.Repository
	clientID string
	log      *slog.Logger
	obs      Observer
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func(now time.Time) (string, error)
	now      func() time.Time

	mu       sync.Mutex
	state    State
	current  identity.Identity
	busy     bool
	subs     map[int]func(Snapshot)
	nextSub  int
	restored bool
}

// StoreOption configures Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver sets the operation observer (metrics).
func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.obs = o }
}

// WithSleep replaces the latency wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithIDGenerator replaces the identity id generator (tests).
func WithIDGenerator(fn func(now time.Time) (string, error)) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore constructs a Store for clientID in StateLoading.
func NewStore(cfg Config, repo identity.Repository, clientID string, opts ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("session: nil repository")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("session: empty client id")
	}
	if cfg.Latency < 0 {
		return nil, ErrConfig
	}

	s := &Store{
		cfg:      cfg,
		repo:     repo,
		clientID: clientID,
		log:      slog.Default(),
		sleep:    sleepCtx,
		newID:    ids.NewULID,
		now:      func() time.Time { return time.Now().UTC() },
		state:    StateLoading,
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports whether a mutating operation is in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Subscribe registers fn for state changes and returns an unsubscribe func.
// fn runs synchronously after the change, outside the store lock.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Restore reads the client's persisted identity and leaves StateLoading.
//
// It never fails: a missing, malformed or unreadable slot yields
// StateUnauthenticated. A slot whose id matches neither the collection nor the
// seeds is evicted; a match adopts the collection's current record.
// Restore runs at most once per Store.
func (s *Store) Restore(ctx context.Context) Snapshot {
	start := time.Now()

	s.mu.Lock()
	if s.restored {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.restored = true
	s.mu.Unlock()

	id, ok, result := s.resolvePersisted(ctx)
	s.observe("restore", result, start)

	s.mu.Lock()
	// A login/signup that finished meanwhile wins.
	if s.state != StateLoading {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	if ok {
		s.state = StateAuthenticated
		s.current = id
	} else {
		s.state = StateUnauthenticated
		s.current = identity.Identity{}
	}
	return s.commitLocked()
}

// Resync re-reads the persisted slot of a restored store so a long-lived
// holder sees a logout or role change made by another request of the same
// client. Subscribers are notified only when the snapshot changes. An
// unreadable slot, an unfinished restore and an in-flight operation all leave
// the state as it is.
func (s *Store) Resync(ctx context.Context) Snapshot {
	start := time.Now()

	s.mu.Lock()
	if !s.restored || s.state == StateLoading || s.busy {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	id, ok, result := s.resolvePersisted(ctx)
	s.observe("resync", result, start)
	if result == "storage_unavailable" {
		return s.Snapshot()
	}

	s.mu.Lock()
	if s.busy {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	switch {
	case ok && (s.state != StateAuthenticated || s.current != id):
		s.state = StateAuthenticated
		s.current = id
	case !ok && s.state != StateUnauthenticated:
		s.state = StateUnauthenticated
		s.current = identity.Identity{}
	default:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	return s.commitLocked()
}

func (s *Store) resolvePersisted(ctx context.Context) (identity.Identity, bool, string) {
	persisted, ok, err := s.repo.Current(ctx, s.clientID)
	if err != nil {
		if identity.IsMalformed(err) {
			s.log.Warn("auth.restore.malformed", "err", err)
			s.evict(ctx)
			return identity.Identity{}, false, "malformed"
		}
		s.log.Warn("auth.restore.storage_unavailable", "err", err)
		return identity.Identity{}, false, "storage_unavailable"
	}
	if !ok {
		return identity.Identity{}, false, "empty"
	}

	fresh, found, err := s.repo.FindByID(ctx, persisted.ID)
	if err != nil {
		s.log.Warn("auth.restore.storage_unavailable", "err", err)
		return identity.Identity{}, false, "storage_unavailable"
	}
	if !found {
		s.log.Warn("auth.restore.orphaned", "identity_id", persisted.ID)
		s.evict(ctx)
		return identity.Identity{}, false, "orphaned"
	}

	if fresh != persisted {
		if err := s.repo.SetCurrent(ctx, s.clientID, fresh); err != nil {
			s.log.Warn("auth.restore.refresh_slot_fail", "identity_id", fresh.ID, "err", err)
		}
	}
	return fresh, true, "ok"
}

func (s *Store) evict(ctx context.Context) {
	if err := s.repo.ClearCurrent(ctx, s.clientID); err != nil {
		s.log.Warn("auth.restore.evict_fail", "err", err)
	}
}

// Login resolves email against the collection then the seeds.
// The credential is accepted unconditionally; no match yields
// ErrInvalidCredentials and nothing is written.
func (s *Store) Login(ctx context.Context, email, credential string) (identity.Identity, error) {
	start := time.Now()
	if err := s.acquire(); err != nil {
		s.observe("login", "busy", start)
		return identity.Identity{}, err
	}
	defer s.release()

	if err := s.sleep(ctx, s.cfg.Latency); err != nil {
		s.observe("login", "canceled", start)
		return identity.Identity{}, err
	}

	id, found, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.observe("login", "error", start)
		return identity.Identity{}, fmt.Errorf("session: login: %w", err)
	}
	if !found {
		s.observe("login", "invalid_credentials", start)
		return identity.Identity{}, ErrInvalidCredentials
	}

	if err := s.repo.SetCurrent(ctx, s.clientID, id); err != nil {
		s.observe("login", "error", start)
		return identity.Identity{}, fmt.Errorf("session: login: %w", err)
	}

	s.authenticate(id)
	s.observe("login", "ok", start)
	return id, nil
}

// Signup creates an unapproved applicant, appends it to the collection and
// makes it current in one atomic write. Duplicate emails are not rejected
// and the credential is never stored.
func (s *Store) Signup(ctx context.Context, email, credential, name string) (identity.Identity, error) {
	start := time.Now()
	if err := s.acquire(); err != nil {
		s.observe("signup", "busy", start)
		return identity.Identity{}, err
	}
	defer s.release()

	if err := s.sleep(ctx, s.cfg.Latency); err != nil {
		s.observe("signup", "canceled", start)
		return identity.Identity{}, err
	}

	uid, err := s.newID(s.now())
	if err != nil {
		s.observe("signup", "error", start)
		return identity.Identity{}, fmt.Errorf("session: signup: %w", err)
	}
	id := identity.Identity{
		ID:    uid,
		Email: email,
		Name:  name,
		Role:  identity.Applicant{Approved: false},
	}

	if err := s.repo.AppendAndSetCurrent(ctx, s.clientID, id); err != nil {
		s.observe("signup", "error", start)
		return identity.Identity{}, fmt.Errorf("session: signup: %w", err)
	}

	s.authenticate(id)
	s.observe("signup", "ok", start)
	return id, nil
}

// Logout clears the in-memory identity and the persisted slot and returns the
// landing navigation. Memory is cleared even when the storage delete fails;
// that failure is returned alongside the navigation.
func (s *Store) Logout(ctx context.Context) (Navigation, error) {
	start := time.Now()
	if err := s.acquire(); err != nil {
		s.observe("logout", "busy", start)
		return Navigation{}, err
	}
	defer s.release()

	err := s.repo.ClearCurrent(ctx, s.clientID)

	s.mu.Lock()
	s.state = StateUnauthenticated
	s.current = identity.Identity{}
	s.restored = true
	s.commitLocked()

	nav := Navigation{Location: LandingPath, FullReload: true}
	if err != nil {
		s.observe("logout", "error", start)
		return nav, fmt.Errorf("session: logout: %w", err)
	}
	s.observe("logout", "ok", start)
	return nav, nil
}

func (s *Store) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Store) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Store) authenticate(id identity.Identity) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.current = id
	s.restored = true
	s.commitLocked()
}

// commitLocked releases mu and notifies subscribers with the new snapshot.
func (s *Store) commitLocked() Snapshot {
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

func (s *Store) snapshotLocked() Snapshot {
	if s.state != StateAuthenticated {
		return Snapshot{State: s.state}
	}
	return Snapshot{State: s.state, Identity: s.current}
}

func (s *Store) observe(op, result string, start time.Time) {
	if s.obs == nil {
		return
	}
	s.obs.ObserveSessionOp(op, result, time.Since(start))
}
