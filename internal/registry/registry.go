// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package registry resolves bot tokens to bot identities and provides the
// stored copy of their scripts.
package registry

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a bot or its script is not registered.
var ErrNotFound = errors.New("bot not found")

// ErrInvalidID is returned for bot ids containing a colon. Storage namespaces
// with a colon are reserved for Starhost itself.
var ErrInvalidID = errors.New("bot id must not contain a colon")

func checkID(id string) error {
	if strings.Contains(id, ":") {
		return fmt.Errorf("bot %q: %w", id, ErrInvalidID)
	}
	return nil
}

// Bot is a registered bot.
type Bot struct {
	// ID identifies the bot. It namespaces the bot storage.
	ID string
	// Token is the Telegram bot token.
	Token string
	// Username is the Telegram username of the bot.
	Username string
	// Name is a human readable name.
	Name string
	// Secret, if set, must match the X-Telegram-Bot-Api-Secret-Token header of
	// webhook deliveries.
	Secret string
}

// Registry looks up bots and their scripts.
type Registry interface {
	// LookupToken returns the bot with the token.
	LookupToken(ctx context.Context, token string) (Bot, error)
	// Script returns the current script of the bot.
	Script(ctx context.Context, botID string) (string, error)
}

// Reloader is implemented by registries that keep a copy of their backing
// data and can re-read it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// DeriveID returns the identifier of a bot registered without one: the first
// 12 hex digits of the MD5 hash of its token.
func DeriveID(token string) string {
	sum := md5.Sum([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// Open returns a Registry selected by dsn: a postgres:// URL or a path to a
// YAML file.
func Open(ctx context.Context, dsn string, opts FileOptions) (Registry, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	return OpenFile(ctx, dsn, opts)
}
