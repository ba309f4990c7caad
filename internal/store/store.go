// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements namespaced key-value storage backed in-memory, by
// PostgreSQL or by Redis.
//
// Every bot gets its own namespace. Values are opaque JSON blobs; writes are
// last-write-wins and there is no expiration.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is a stored value together with the time of the last write.
type Record struct {
	Value     []byte
	UpdatedAt time.Time
}

// Store is a namespaced key-value store.
type Store interface {
	// Get retrieves a record for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, ns, key string) (*Record, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, ns, key string, value []byte) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, ns, key string) error
	// Exists reports whether a key is present.
	Exists(ctx context.Context, ns, key string) (bool, error)
	// Keys returns all keys of a namespace in lexical order.
	Keys(ctx context.Context, ns string) ([]string, error)
	// Clear removes every key of a namespace.
	Clear(ctx context.Context, ns string) error
	// Close closes the store and releases any resources.
	Close() error
}

// ErrUnknownBackend is returned by [Open] for unsupported DSNs.
var ErrUnknownBackend = errors.New("unknown store backend")

// Open returns a Store selected by dsn: "memory" (or empty), a postgres:// URL
// or a redis:// URL.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemStore(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return NewRedisStore(ctx, dsn)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, dsn)
}
