// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single storage round trip made through a [Client].
const DefaultTimeout = 5 * time.Second

// Client is a view of a Store bound to a single namespace.
//
// Client never returns errors: backend failures are logged and reported
// through the ok result, so a failing store can't abort a running script.
type Client struct {
	store   Store
	ns      string
	logger  *slog.Logger
	timeout time.Duration
}

// NewClient returns a Client bound to namespace ns.
func NewClient(s Store, ns string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:   s,
		ns:      ns,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// Namespace returns the namespace the client is bound to.
func (c *Client) Namespace() string { return c.ns }

func (c *Client) do(ctx context.Context, op, key string, f func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := f(ctx); err != nil {
		c.logger.Warn("storage operation failed", "op", op, "namespace", c.ns, "key", key, "err", err)
		return false
	}
	return true
}

// Get returns the value stored under key. found is false if there is no such
// key; ok is false if the backend failed.
func (c *Client) Get(ctx context.Context, key string) (value []byte, found, ok bool) {
	ok = c.do(ctx, "get", key, func(ctx context.Context) error {
		rec, err := c.store.Get(ctx, c.ns, key)
		if err != nil {
			return err
		}
		if rec != nil {
			value, found = rec.Value, true
		}
		return nil
	})
	return value, found, ok
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key string, value []byte) bool {
	return c.do(ctx, "set", key, func(ctx context.Context) error {
		return c.store.Set(ctx, c.ns, key, value)
	})
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) bool {
	return c.do(ctx, "delete", key, func(ctx context.Context) error {
		return c.store.Delete(ctx, c.ns, key)
	})
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (exists, ok bool) {
	ok = c.do(ctx, "exists", key, func(ctx context.Context) (err error) {
		exists, err = c.store.Exists(ctx, c.ns, key)
		return err
	})
	return exists, ok
}

// Keys returns all keys in the namespace.
func (c *Client) Keys(ctx context.Context) (keys []string, ok bool) {
	ok = c.do(ctx, "keys", "", func(ctx context.Context) (err error) {
		keys, err = c.store.Keys(ctx, c.ns)
		return err
	})
	return keys, ok
}

// Clear removes every key in the namespace.
func (c *Client) Clear(ctx context.Context) bool {
	return c.do(ctx, "clear", "", func(ctx context.Context) error {
		return c.store.Clear(ctx, c.ns)
	})
}
