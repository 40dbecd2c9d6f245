package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend is a Postgres-backed Backend implementation, for
// deployments that need a durable, multi-process-safe store beyond a
// single filesystem (SPEC_FULL.md §11). It stores each key as one row in a
// single key/value table, following the teacher's pgxpool-based connection
// management (internal/storage/pool.go).
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to dsn and ensures the backing table exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	b := &PostgresBackend{pool: pool}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tamalebot_kv (
			key   TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO tamalebot_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.pool.QueryRow(ctx, `SELECT value FROM tamalebot_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return value, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM tamalebot_kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT key FROM tamalebot_kv WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list rows: %w", err)
	}
	return keys, nil
}
