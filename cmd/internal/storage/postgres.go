package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV stores values in a single jsonb table.
//
// PostgresKV does NOT own the pool; Close is a no-op.
// Update serializes all writers with a transactional advisory lock so
// read-modify-write sequences on shared collections never interleave.
type PostgresKV struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresKV.
type PostgresOption func(*PostgresKV) error

// WithSchema sets the schema holding the kv table (default: "flarehub").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresKV) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("storage: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("storage: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresKV constructs a Postgres-backed KV.
func NewPostgresKV(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresKV, error) {
	kv := &PostgresKV{pool: pool, schema: "flarehub"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(kv); err != nil {
			return nil, err
		}
	}
	if kv.pool == nil {
		return nil, errors.New("storage: nil pool")
	}
	return kv, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresKV) Close() error { return nil }

// updateLockKey is the advisory lock id shared by every Update.
const updateLockKey = "flarehub.kv.update"

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresKV) table() string {
	return pgx.Identifier{s.schema, "kv"}.Sanitize()
}

func (s *PostgresKV) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	return pgGet(ctx, s.pool, s.table(), namespace, key)
}

func (s *PostgresKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	return pgSet(ctx, s.pool, s.table(), namespace, key, value)
}

func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	return pgDelete(ctx, s.pool, s.table(), namespace, key)
}

// Update runs fn inside a read-committed transaction holding the update lock.
func (s *PostgresKV) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, updateLockKey); err != nil {
		return fmt.Errorf("storage: advisory lock: %w", err)
	}

	if err := fn(&pgTx{q: tx, table: s.table()}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

type pgTx struct {
	q     pgQuerier
	table string
}

func (t *pgTx) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	return pgGet(ctx, t.q, t.table, namespace, key)
}

func (t *pgTx) Set(ctx context.Context, namespace, key string, value []byte) error {
	return pgSet(ctx, t.q, t.table, namespace, key, value)
}

func (t *pgTx) Delete(ctx context.Context, namespace, key string) error {
	return pgDelete(ctx, t.q, t.table, namespace, key)
}

func pgGet(ctx context.Context, q pgQuerier, table, namespace, key string) ([]byte, bool, error) {
	if err := validKey(namespace, key); err != nil {
		return nil, false, err
	}

	// jsonb normalizes whitespace and key order; the text form is the same
	// document, not the bytes that were written.
	var raw string
	err := q.QueryRow(ctx,
		`SELECT value::text FROM `+table+` WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s/%s: %w", namespace, key, err)
	}
	return []byte(raw), true, nil
}

func pgSet(ctx context.Context, q pgQuerier, table, namespace, key string, value []byte) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	_, err := q.Exec(ctx,
		`INSERT INTO `+table+` (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		namespace, key, string(value),
	)
	if err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func pgDelete(ctx context.Context, q pgQuerier, table, namespace, key string) error {
	if err := validKey(namespace, key); err != nil {
		return err
	}
	if _, err := q.Exec(ctx,
		`DELETE FROM `+table+` WHERE namespace = $1 AND key = $2`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("storage: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
