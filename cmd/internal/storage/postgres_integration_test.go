package storage

import (
	"context"
	"encoding/json"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when FLAREHUB_DATABASE_URL is set.

func TestPostgresKV(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	kv, err := NewPostgresKV(pool)
	if err != nil {
		t.Fatalf("NewPostgresKV: %v", err)
	}
	runKVSuite(t, kv)
}

func TestPostgresKV_ReturnsNormalizedDocument(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	kv, err := NewPostgresKV(pool)
	if err != nil {
		t.Fatalf("NewPostgresKV: %v", err)
	}

	in := []byte(`{ "b" : 1,   "a": [1,2] }`)
	if err := kv.Set(ctx, "normalize", "doc", in); err != nil {
		t.Fatalf("set: %v", err)
	}
	t.Cleanup(func() { _ = kv.Delete(context.Background(), "normalize", "doc") })

	out, ok, err := kv.Get(ctx, "normalize", "doc")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}

	var want, got map[string]any
	if err := json.Unmarshal(in, &want); err != nil {
		t.Fatalf("decode in: %v", err)
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode out: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("document changed: want %v got %v", want, got)
	}
}

func TestWithSchema_RejectsInvalidIdentifiers(t *testing.T) {
	t.Parallel()

	for _, schema := range []string{"", "  ", "bad-name", "1abc", `x"; drop`} {
		if err := WithSchema(schema)(&PostgresKV{}); err == nil {
			t.Fatalf("expected error for schema %q", schema)
		}
	}
	if err := WithSchema("flarehub_test")(&PostgresKV{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("FLAREHUB_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FLAREHUB_DATABASE_URL not set; skipping Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	return pool
}
