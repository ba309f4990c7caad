// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package audit records every inbound webhook delivery.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Entry is a recorded webhook delivery.
type Entry struct {
	// ID identifies the invocation that handled the update.
	ID        string          `json:"id"`
	BotID     string          `json:"bot_id"`
	Update    json.RawMessage `json:"update"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON encodes the entry. An update that is not valid JSON is encoded
// as a string holding the payload.
func (e Entry) MarshalJSON() ([]byte, error) {
	type entry Entry
	if !json.Valid(e.Update) {
		s, err := json.Marshal(string(e.Update))
		if err != nil {
			return nil, err
		}
		e.Update = s
	}
	return json.Marshal(entry(e))
}

// Sink stores entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// ErrUnknownSink is returned by [Open] for unsupported DSNs.
var ErrUnknownSink = errors.New("unknown audit sink")

// Open returns a Sink selected by dsn: "log" (or empty), an amqp:// URL or a
// postgres:// URL.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (Sink, error) {
	switch {
	case dsn == "" || dsn == "log":
		return &LogSink{Logger: logger}, nil
	case strings.HasPrefix(dsn, "amqp://"), strings.HasPrefix(dsn, "amqps://"):
		return NewAMQPSink(dsn, DefaultExchange, logger)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresSink(ctx, dsn)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, dsn)
}

// LogSink writes entries to a logger.
type LogSink struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Record implements [Sink].
func (s *LogSink) Record(ctx context.Context, e Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "update received",
		slog.String("id", e.ID),
		slog.String("bot_id", e.BotID),
		slog.Time("timestamp", e.Timestamp),
		slog.String("update", string(e.Update)),
	)
	return nil
}

// Close implements [Sink].
func (s *LogSink) Close() error { return nil }
