package app

import (
	"context"
	"fmt"
	"time"

	"flarehub/cmd/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	postgresAppName     = "flarehub"
	postgresDialTimeout = 3 * time.Second
)

// postgresPoolConfig turns Config into pool settings without dialing.
func postgresPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		pcfg.MinConns = min(cfg.DBMinConns, pcfg.MaxConns)
	}
	if cfg.DBHealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.DBHealthCheckPeriod
	}
	if cfg.DBMaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	}

	// An explicit application_name in the URL wins.
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = postgresAppName
	}
	return pcfg, nil
}

// OpenPostgres dials the pool, applies the KV migrations and returns the
// store bound to it. The pool is closed on any failure.
func OpenPostgres(ctx context.Context, cfg Config) (*pgxpool.Pool, *storage.PostgresKV, error) {
	pcfg, err := postgresPoolConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, err
	}
	if err := PingDB(ctx, pool, postgresDialTimeout); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := storage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	kv, err := storage.NewPostgresKV(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, kv, nil
}

// PingDB round-trips to the server within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}
