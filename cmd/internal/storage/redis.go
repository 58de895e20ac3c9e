package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrConflict is returned when an optimistic Update lost every retry.
var ErrConflict = errors.New("storage: concurrent update conflict")

const defaultRedisUpdateRetries = 8

// RedisKV stores each (namespace, key) under its own Redis string key.
//
// Update is optimistic: every key read inside fn is WATCHed and staged writes
// are applied in MULTI/EXEC. A lost race reruns fn.
type RedisKV struct {
	rdb     redis.UniversalClient
	prefix  string
	retries int
}

// RedisOption configures RedisKV.
type RedisOption func(*RedisKV)

// WithRedisPrefix sets the key prefix (default "flarehub:kv").
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisKV) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// WithRedisUpdateRetries bounds how often Update reruns after a WATCH failure.
func WithRedisUpdateRetries(n int) RedisOption {
	return func(s *RedisKV) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewRedisKV wraps a go-redis client. The client is owned by the caller.
func NewRedisKV(rdb redis.UniversalClient, opts ...RedisOption) (*RedisKV, error) {
	if rdb == nil {
		return nil, errors.New("storage: nil redis client")
	}
	kv := &RedisKV{rdb: rdb, prefix: "flarehub:kv", retries: defaultRedisUpdateRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(kv)
		}
	}
	return kv, nil
}

// Close is a no-op because the client is owned by the caller.
func (s *RedisKV) Close() error { return nil }

func (s *RedisKV) redisKey(namespace, key string) string {
	return s.prefix + ":" + namespace + ":" + key
}

func (s *RedisKV) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validKey(namespace, key); err != nil {
		return nil, false, err
	}
	b, err := s.rdb.Get(ctx, s.redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: redis get %s/%s: %w", namespace, key, err)
	}
	return b, true, nil
}

func (s *RedisKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.redisKey(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, namespace, key string) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.redisKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("storage: redis del %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Update runs fn with WATCH-based optimistic concurrency.
func (s *RedisKV) Update(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{kv: s, rtx: rtx, staged: make(map[string]*[]byte)}
			if err := fn(tx); err != nil {
				return err
			}
			if len(tx.staged) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for k, v := range tx.staged {
					if v == nil {
						pipe.Del(ctx, k)
						continue
					}
					pipe.Set(ctx, k, *v, 0)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

type redisTx struct {
	kv     *RedisKV
	rtx    *redis.Tx
	staged map[string]*[]byte
}

func (t *redisTx) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validKey(namespace, key); err != nil {
		return nil, false, err
	}
	rk := t.kv.redisKey(namespace, key)
	if v, ok := t.staged[rk]; ok {
		if v == nil {
			return nil, false, nil
		}
		return append([]byte(nil), (*v)...), true, nil
	}

	if err := t.rtx.Watch(ctx, rk).Err(); err != nil {
		return nil, false, fmt.Errorf("storage: redis watch %s/%s: %w", namespace, key, err)
	}
	b, err := t.rtx.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: redis get %s/%s: %w", namespace, key, err)
	}
	return b, true, nil
}

func (t *redisTx) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	t.staged[t.kv.redisKey(namespace, key)] = &cp
	return nil
}

func (t *redisTx) Delete(ctx context.Context, namespace, key string) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	t.staged[t.kv.redisKey(namespace, key)] = nil
	return nil
}
