// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Registry backed by the bots table of a PostgreSQL database.
// Rows are managed outside of this program.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and creates the bots table if needed.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			secret TEXT NOT NULL DEFAULT '',
			script TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

// LookupToken implements [Registry].
func (p *Postgres) LookupToken(ctx context.Context, token string) (Bot, error) {
	var b Bot
	if err := p.pool.QueryRow(ctx, `
		SELECT id, token, username, name, secret FROM bots WHERE token = $1;
	`, token).Scan(&b.ID, &b.Token, &b.Username, &b.Name, &b.Secret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bot{}, ErrNotFound
		}
		return Bot{}, err
	}
	if err := checkID(b.ID); err != nil {
		return Bot{}, err
	}
	return b, nil
}

// Script implements [Registry].
func (p *Postgres) Script(ctx context.Context, botID string) (string, error) {
	var script string
	if err := p.pool.QueryRow(ctx, `SELECT script FROM bots WHERE id = $1;`, botID).Scan(&script); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return script, nil
}

// register inserts or replaces a bot and its script. If b.ID is empty, it is
// derived from the token.
func (p *Postgres) register(ctx context.Context, b Bot, script string) (Bot, error) {
	if b.ID == "" {
		b.ID = DeriveID(b.Token)
	}
	if err := checkID(b.ID); err != nil {
		return b, err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bots (id, token, username, name, secret, script, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET token = $2, username = $3, name = $4, secret = $5, script = $6, updated_at = NOW();
	`, b.ID, b.Token, b.Username, b.Name, b.Secret, script)
	return b, err
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
