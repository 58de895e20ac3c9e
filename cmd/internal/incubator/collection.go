package incubator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"flarehub/cmd/internal/storage"
)

// Collection is a JSON array of T stored under one shared key.
//
// Entries that fail to decode are skipped on read and preserved verbatim on
// write. A document that is not an array reads as empty.
type Collection[T any] struct {
	kv  storage.KV
	key string
	log *slog.Logger
}

func NewCollection[T any](kv storage.KV, key string, log *slog.Logger) *Collection[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Collection[T]{kv: kv, key: key, log: log}
}

// All returns the decodable entries in insertion order.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	entries, err := c.read(ctx, c.kv)
	if err != nil {
		return nil, fmt.Errorf("incubator.%s.All: %w", c.key, err)
	}
	out := make([]T, 0, len(entries))
	for i, raw := range entries {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.log.Warn("incubator.collection.skip", "key", c.key, "index", i, "err", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Find returns the first entry matching match.
func (c *Collection[T]) Find(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	all, err := c.All(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, v := range all {
		if match(v) {
			return v, true, nil
		}
	}
	return zero, false, nil
}

func (c *Collection[T]) Append(ctx context.Context, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("incubator.%s.Append: %w", c.key, err)
	}
	err = c.kv.Update(ctx, func(tx storage.Tx) error {
		entries, err := c.read(ctx, tx)
		if err != nil {
			return err
		}
		return c.write(ctx, tx, append(entries, b))
	})
	if err != nil {
		return fmt.Errorf("incubator.%s.Append: %w", c.key, err)
	}
	return nil
}

// Update rewrites every entry matching match with fn and returns the
// rewritten values. fn may return an error to abort without writing.
func (c *Collection[T]) Update(ctx context.Context, match func(T) bool, fn func(T) (T, error)) ([]T, error) {
	var updated []T
	err := c.kv.Update(ctx, func(tx storage.Tx) error {
		updated = updated[:0]
		entries, err := c.read(ctx, tx)
		if err != nil {
			return err
		}
		for i, raw := range entries {
			var cur T
			if err := json.Unmarshal(raw, &cur); err != nil || !match(cur) {
				continue
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			b, err := json.Marshal(next)
			if err != nil {
				return err
			}
			entries[i] = b
			updated = append(updated, next)
		}
		if len(updated) == 0 {
			return nil
		}
		return c.write(ctx, tx, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("incubator.%s.Update: %w", c.key, err)
	}
	return updated, nil
}

func (c *Collection[T]) read(ctx context.Context, rd storage.Reader) ([]json.RawMessage, error) {
	raw, ok, err := rd.Get(ctx, storage.SharedNamespace, c.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn("incubator.collection.malformed", "key", c.key, "err", err)
		return nil, nil
	}
	return entries, nil
}

func (c *Collection[T]) write(ctx context.Context, tx storage.Tx, entries []json.RawMessage) error {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return tx.Set(ctx, storage.SharedNamespace, c.key, b)
}
