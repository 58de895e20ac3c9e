package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	kv, err := NewRedisKV(rdb, WithRedisUpdateRetries(64))
	if err != nil {
		t.Fatalf("NewRedisKV: %v", err)
	}
	return kv, mr
}

func TestRedisKV(t *testing.T) {
	t.Parallel()

	kv, _ := newMiniredisKV(t)
	runKVSuite(t, kv)
}

func TestRedisKV_KeyLayout(t *testing.T) {
	t.Parallel()

	kv, mr := newMiniredisKV(t)
	if err := kv.Set(context.Background(), SharedNamespace, KeyUsers, []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := mr.Get("flarehub:kv:shared:flare_hub_users")
	if err != nil {
		t.Fatalf("expected prefixed key: %v", err)
	}
	if got != `[]` {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestNewRedisKV_NilClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisKV(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
