// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore and connects to the database.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (namespace, key)
		);
	`); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Get retrieves a record for a given key.
func (s *PostgresStore) Get(ctx context.Context, ns, key string) (*Record, error) {
	var rec Record
	if err := s.pool.QueryRow(ctx, `
		SELECT value, updated_at FROM kv WHERE namespace = $1 AND key = $2;
	`, ns, key).Scan(&rec.Value, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Set stores a value for a given key.
func (s *PostgresStore) Set(ctx context.Context, ns, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = $3, updated_at = NOW();
	`, ns, key, value)
	return err
}

// Delete removes a key.
func (s *PostgresStore) Delete(ctx context.Context, ns, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE namespace = $1 AND key = $2;`, ns, key)
	return err
}

// Exists reports whether a key is present.
func (s *PostgresStore) Exists(ctx context.Context, ns, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM kv WHERE namespace = $1 AND key = $2);
	`, ns, key).Scan(&exists)
	return exists, err
}

// Keys returns all keys of a namespace.
func (s *PostgresStore) Keys(ctx context.Context, ns string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM kv WHERE namespace = $1 ORDER BY key;`, ns)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Clear removes every key of a namespace.
func (s *PostgresStore) Clear(ctx context.Context, ns string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE namespace = $1;`, ns)
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
