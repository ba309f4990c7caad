// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package scriptcache keeps the current script of every bot in memory.
//
// Entries are replaced atomically. An entry is dropped when the registry
// announces an update for its bot (see [Cache.Invalidate] and [Watch]) and is
// never served for longer than MaxAge, which bounds staleness when an
// announcement is lost.
package scriptcache

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.astrophena.name/starhost/internal/sandbox"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxAge is the default age after which an entry is reloaded.
const DefaultMaxAge = 5 * time.Minute

// Source provides the stored copy of bot scripts.
type Source interface {
	Script(ctx context.Context, botID string) (string, error)
}

// Options configure a Cache.
type Options struct {
	// MaxAge is how long an entry is served before it is reloaded from the
	// source. Defaults to DefaultMaxAge.
	MaxAge time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// for tests
	now func() time.Time
}

// Cache maps bot identifiers to compiled scripts. It is safe for concurrent
// use.
type Cache struct {
	src    Source
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time

	loads singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64 // bumped by Invalidate
}

type entry struct {
	script   *sandbox.Script
	loadedAt time.Time
}

// New returns a Cache that loads missing entries from src.
func New(src Source, opts Options) *Cache {
	c := &Cache{
		src:     src,
		maxAge:  cmp.Or(opts.MaxAge, DefaultMaxAge),
		logger:  cmp.Or(opts.Logger, slog.Default()),
		now:     opts.now,
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the script of the bot. On a miss or an expired entry, the script
// is loaded from the source and cached.
func (c *Cache) Get(ctx context.Context, botID string) (*sandbox.Script, error) {
	c.mu.RLock()
	e, ok := c.entries[botID]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.maxAge {
		return e.script, nil
	}
	return c.Refresh(ctx, botID)
}

// Refresh loads the script of the bot from the source and replaces the cached
// entry. Concurrent refreshes of the same bot share one load. A load that was
// running when the bot was invalidated returns its script without caching it.
func (c *Cache) Refresh(ctx context.Context, botID string) (*sandbox.Script, error) {
	v, err, _ := c.loads.Do(botID, func() (any, error) {
		c.mu.RLock()
		gen := c.gens[botID]
		c.mu.RUnlock()

		src, err := c.src.Script(ctx, botID)
		if err != nil {
			return nil, fmt.Errorf("loading script of bot %q: %w", botID, err)
		}
		return c.put(botID, src, gen), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sandbox.Script), nil
}

// put caches src as the script of the bot and returns it, unless the bot was
// invalidated since generation gen was read. If the cached script has the
// same source, it is kept along with its compiled form.
func (c *Cache) put(botID, src string, gen uint64) *sandbox.Script {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[botID] != gen {
		c.logger.Debug("discarded script loaded before invalidation", "bot_id", botID)
		return sandbox.NewScript(botID+".star", src)
	}

	e, ok := c.entries[botID]
	if !ok || e.script.Source != src {
		e.script = sandbox.NewScript(botID+".star", src)
		c.logger.Debug("cached script", "bot_id", botID)
	}
	e.loadedAt = c.now()
	c.entries[botID] = e
	return e.script
}

// Invalidate drops the cached script of the bot. The next Get reloads it and
// does not join a load started before the call.
func (c *Cache) Invalidate(botID string) {
	c.loads.Forget(botID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[botID]++
	if _, ok := c.entries[botID]; ok {
		delete(c.entries, botID)
		c.logger.Debug("invalidated script", "bot_id", botID)
	}
}

// Len returns the number of cached scripts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
