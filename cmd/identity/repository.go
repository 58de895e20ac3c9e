package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"flarehub/cmd/internal/storage"
	"flarehub/cmd/security/token"
)

// Repository is the persistence boundary for identities.
//
// The current-identity slot is private to a client; the collection is shared.
// AppendAndSetCurrent is the only operation that writes both, and it does so
// atomically.
type Repository interface {
	Current(ctx context.Context, clientID string) (Identity, bool, error)
	SetCurrent(ctx context.Context, clientID string, id Identity) error
	ClearCurrent(ctx context.Context, clientID string) error
	AppendAndSetCurrent(ctx context.Context, clientID string, id Identity) error

	Collection(ctx context.Context) ([]Identity, error)
	Append(ctx context.Context, id Identity) error
	UpdateByEmail(ctx context.Context, email string, fn func(Identity) Identity) (int, error)

	// FindByEmail and FindByID search the collection first, then the seeds.
	FindByEmail(ctx context.Context, email string) (Identity, bool, error)
	FindByID(ctx context.Context, id string) (Identity, bool, error)
}

// KVRepository implements Repository on a storage.KV.
type KVRepository struct {
	kv  storage.KV
	log *slog.Logger
}

// RepositoryOption configures KVRepository.
type RepositoryOption func(*KVRepository)

// WithLogger sets the logger used for skipped records.
func WithLogger(l *slog.Logger) RepositoryOption {
	return func(r *KVRepository) {
		if l != nil {
			r.log = l
		}
	}
}

// NewKVRepository constructs a repository over kv.
func NewKVRepository(kv storage.KV, opts ...RepositoryOption) (*KVRepository, error) {
	if kv == nil {
		return nil, errors.New("identity: nil kv")
	}
	r := &KVRepository{kv: kv, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func clientNamespace(clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", invalid("identity.clientNamespace", "missing client id")
	}
	return storage.ClientNamespace(token.HashClientIDHex(clientID)), nil
}

// Current returns the client's current identity.
// A slot that fails to decode is reported as an ErrMalformed OpError.
func (r *KVRepository) Current(ctx context.Context, clientID string) (Identity, bool, error) {
	const op = "identity.Current"

	ns, err := clientNamespace(clientID)
	if err != nil {
		return Identity{}, false, err
	}
	raw, ok, err := r.kv.Get(ctx, ns, storage.KeyCurrentUser)
	if err != nil {
		return Identity{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return Identity{}, false, nil
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		var oe OpError
		if errors.As(err, &oe) {
			return Identity{}, false, OpError{Op: op, Kind: oe.Kind, Msg: oe.Msg}
		}
		return Identity{}, false, malformed(op, err.Error())
	}
	return id, true, nil
}

func (r *KVRepository) SetCurrent(ctx context.Context, clientID string, id Identity) error {
	const op = "identity.SetCurrent"

	ns, err := clientNamespace(clientID)
	if err != nil {
		return err
	}
	b, err := encode(op, id)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, ns, storage.KeyCurrentUser, b); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *KVRepository) ClearCurrent(ctx context.Context, clientID string) error {
	const op = "identity.ClearCurrent"

	ns, err := clientNamespace(clientID)
	if err != nil {
		return err
	}
	if err := r.kv.Delete(ctx, ns, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AppendAndSetCurrent appends id to the collection and makes it the client's
// current identity in one transaction.
func (r *KVRepository) AppendAndSetCurrent(ctx context.Context, clientID string, id Identity) error {
	const op = "identity.AppendAndSetCurrent"

	ns, err := clientNamespace(clientID)
	if err != nil {
		return err
	}
	b, err := encode(op, id)
	if err != nil {
		return err
	}

	err = r.kv.Update(ctx, func(tx storage.Tx) error {
		entries, err := r.readEntries(ctx, tx)
		if err != nil {
			return err
		}
		if err := writeEntries(ctx, tx, append(entries, b)); err != nil {
			return err
		}
		return tx.Set(ctx, ns, storage.KeyCurrentUser, b)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Collection returns every well-formed identity in the collection, in order.
func (r *KVRepository) Collection(ctx context.Context) ([]Identity, error) {
	entries, err := r.readEntries(ctx, r.kv)
	if err != nil {
		return nil, fmt.Errorf("identity.Collection: %w", err)
	}
	return r.decodeEntries(entries), nil
}

func (r *KVRepository) Append(ctx context.Context, id Identity) error {
	const op = "identity.Append"

	b, err := encode(op, id)
	if err != nil {
		return err
	}
	err = r.kv.Update(ctx, func(tx storage.Tx) error {
		entries, err := r.readEntries(ctx, tx)
		if err != nil {
			return err
		}
		return writeEntries(ctx, tx, append(entries, b))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateByEmail rewrites every collection entry whose email equals email
// exactly and returns how many were changed. Entries that do not decode are
// kept verbatim.
func (r *KVRepository) UpdateByEmail(ctx context.Context, email string, fn func(Identity) Identity) (int, error) {
	const op = "identity.UpdateByEmail"

	if fn == nil {
		return 0, invalid(op, "nil update func")
	}

	changed := 0
	err := r.kv.Update(ctx, func(tx storage.Tx) error {
		changed = 0
		entries, err := r.readEntries(ctx, tx)
		if err != nil {
			return err
		}
		for i, raw := range entries {
			var cur Identity
			if err := json.Unmarshal(raw, &cur); err != nil || cur.Email != email {
				continue
			}
			b, err := encode(op, fn(cur))
			if err != nil {
				return err
			}
			entries[i] = b
			changed++
		}
		if changed == 0 {
			return nil
		}
		return writeEntries(ctx, tx, entries)
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return changed, nil
}

func (r *KVRepository) FindByEmail(ctx context.Context, email string) (Identity, bool, error) {
	return r.find(ctx, "identity.FindByEmail", func(i Identity) bool { return i.Email == email })
}

func (r *KVRepository) FindByID(ctx context.Context, id string) (Identity, bool, error) {
	return r.find(ctx, "identity.FindByID", func(i Identity) bool { return i.ID == id })
}

func (r *KVRepository) find(ctx context.Context, op string, match func(Identity) bool) (Identity, bool, error) {
	all, err := r.Collection(ctx)
	if err != nil {
		return Identity{}, false, fmt.Errorf("%s: %w", op, err)
	}
	for _, src := range [][]Identity{all, seeds} {
		for _, id := range src {
			if match(id) {
				return id, true, nil
			}
		}
	}
	return Identity{}, false, nil
}

// readEntries returns the raw collection entries. A collection document that
// is not a JSON array reads as empty and is logged.
func (r *KVRepository) readEntries(ctx context.Context, rd storage.Reader) ([]json.RawMessage, error) {
	raw, ok, err := rd.Get(ctx, storage.SharedNamespace, storage.KeyUsers)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.log.Warn("identity.collection.malformed", "key", storage.KeyUsers, "err", err)
		return nil, nil
	}
	return entries, nil
}

func (r *KVRepository) decodeEntries(entries []json.RawMessage) []Identity {
	out := make([]Identity, 0, len(entries))
	for i, raw := range entries {
		var id Identity
		if err := json.Unmarshal(raw, &id); err != nil {
			r.log.Warn("identity.collection.skip", "index", i, "err", err)
			continue
		}
		out = append(out, id)
	}
	return out
}

func writeEntries(ctx context.Context, tx storage.Tx, entries []json.RawMessage) error {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return tx.Set(ctx, storage.SharedNamespace, storage.KeyUsers, b)
}

func encode(op string, id Identity) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}
	b, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}
