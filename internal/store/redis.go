// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the Store interface. Each namespace
// is kept in its own hash.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis at url and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return NewRedisStoreWithClient(rdb), nil
}

// NewRedisStoreWithClient returns a RedisStore that uses an existing client.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "starhost:kv:"}
}

type redisRecord struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *RedisStore) hash(ns string) string { return s.prefix + ns }

// Get retrieves a record for a given key.
func (s *RedisStore) Get(ctx context.Context, ns, key string) (*Record, error) {
	raw, err := s.rdb.HGet(ctx, s.hash(ns), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("corrupted record %s/%s: %w", ns, key, err)
	}
	return &Record{Value: []byte(rr.Value), UpdatedAt: rr.UpdatedAt}, nil
}

// Set stores a value for a given key.
func (s *RedisStore) Set(ctx context.Context, ns, key string, value []byte) error {
	raw, err := json.Marshal(redisRecord{Value: json.RawMessage(value), UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.hash(ns), key, raw).Err()
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, ns, key string) error {
	return s.rdb.HDel(ctx, s.hash(ns), key).Err()
}

// Exists reports whether a key is present.
func (s *RedisStore) Exists(ctx context.Context, ns, key string) (bool, error) {
	return s.rdb.HExists(ctx, s.hash(ns), key).Result()
}

// Keys returns all keys of a namespace.
func (s *RedisStore) Keys(ctx context.Context, ns string) ([]string, error) {
	keys, err := s.rdb.HKeys(ctx, s.hash(ns)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear removes every key of a namespace.
func (s *RedisStore) Clear(ctx context.Context, ns string) error {
	return s.rdb.Del(ctx, s.hash(ns)).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }
