// Package pg implementa BlobStore sobre Postgres (tabla key/value con
// list-by-prefix). Útil cuando no hay object store disponible; conserva
// a propósito la misma semántica débil del contrato: el Put es un upsert
// incondicional, sin compare-and-swap.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/ipvote/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
}

// New conecta el pool y asegura el schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var b []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM blobs WHERE key = $1`, key).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, data)
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	// Los nombres de poll contienen '_', que es wildcard en LIKE: se escapa.
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM blobs WHERE key LIKE $1 || '%' ORDER BY key`, esc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() { s.pool.Close() }
