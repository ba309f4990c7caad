// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink stores entries in the messages table of a PostgreSQL database.
// Updates are stored as received, whether or not they are valid JSON.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to the database and creates the messages table if
// needed.
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			"update" BYTEA NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_bot_id_timestamp ON messages (bot_id, "timestamp");
	`); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

// Record implements [Sink].
func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, bot_id, "update", "timestamp") VALUES ($1, $2, $3, $4);
	`, e.ID, e.BotID, []byte(e.Update), e.Timestamp)
	return err
}

// count returns the number of entries recorded for the bot.
func (s *PostgresSink) count(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE bot_id = $1;`, botID).Scan(&n)
	return n, err
}

// update returns the stored update of the entry with the given ID.
func (s *PostgresSink) update(ctx context.Context, id string) ([]byte, error) {
	var b []byte
	err := s.pool.QueryRow(ctx, `SELECT "update" FROM messages WHERE id = $1;`, id).Scan(&b)
	return b, err
}

// Close implements [Sink].
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
