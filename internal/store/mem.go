// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"slices"
	"time"

	"go.astrophena.name/starhost/internal/syncx"
)

// MemStore is an in-memory implementation of the Store interface.
// Its contents do not survive process restarts.
type MemStore struct {
	namespaces *syncx.Protected[map[string]map[string]Record]
	now        func() time.Time // for tests
}

// NewMemStore creates a new empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		namespaces: syncx.Protect(make(map[string]map[string]Record)),
		now:        time.Now,
	}
}

// Get retrieves a record for a given key.
func (s *MemStore) Get(_ context.Context, ns, key string) (*Record, error) {
	var rec *Record
	s.namespaces.RAccess(func(m map[string]map[string]Record) {
		r, ok := m[ns][key]
		if !ok {
			return
		}
		// Return a copy to prevent the caller from mutating the store.
		rec = &Record{Value: append([]byte(nil), r.Value...), UpdatedAt: r.UpdatedAt}
	})
	return rec, nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, ns, key string, value []byte) error {
	// Store a copy to prevent the caller from mutating the store.
	rec := Record{Value: append([]byte(nil), value...), UpdatedAt: s.now()}
	s.namespaces.Access(func(m map[string]map[string]Record) {
		if m[ns] == nil {
			m[ns] = make(map[string]Record)
		}
		m[ns][key] = rec
	})
	return nil
}

// Delete removes a key.
func (s *MemStore) Delete(_ context.Context, ns, key string) error {
	s.namespaces.Access(func(m map[string]map[string]Record) {
		delete(m[ns], key)
	})
	return nil
}

// Exists reports whether a key is present.
func (s *MemStore) Exists(_ context.Context, ns, key string) (bool, error) {
	var ok bool
	s.namespaces.RAccess(func(m map[string]map[string]Record) {
		_, ok = m[ns][key]
	})
	return ok, nil
}

// Keys returns all keys of a namespace.
func (s *MemStore) Keys(_ context.Context, ns string) ([]string, error) {
	var keys []string
	s.namespaces.RAccess(func(m map[string]map[string]Record) {
		for k := range m[ns] {
			keys = append(keys, k)
		}
	})
	slices.Sort(keys)
	return keys, nil
}

// Clear removes every key of a namespace.
func (s *MemStore) Clear(_ context.Context, ns string) error {
	s.namespaces.Access(func(m map[string]map[string]Record) {
		delete(m, ns)
	})
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }
