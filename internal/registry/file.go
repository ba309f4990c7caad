// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.astrophena.name/starhost/internal/api/gist"

	"gopkg.in/yaml.v3"
)

// FileOptions configure a File registry.
type FileOptions struct {
	// Gist is used to fetch scripts kept in gists. If nil, a client without a
	// token is used.
	Gist *gist.Client
}

// File is a Registry backed by a YAML file:
//
//	bots:
//	  - token: "123456:ABC..."
//	    username: echo_bot
//	    script: |
//	      def on_message(message):
//	          bot.send_message(message.chat.id, message.text)
//	  - id: weather
//	    token: "654321:XYZ..."
//	    secret: s3cr3t
//	    script_file: weather.star
//	  - token: "111111:QWE..."
//	    gist: 98c0eeb72ee0bdba33c24d1e19780081/bot.star
//
// Exactly one of script, script_file (relative to the registry file) and gist
// (an ID, optionally followed by a slash and a file name) must be set.
// script_file and gist are read on every Script call, so edits are picked up
// when the cache entry of the bot is refreshed.
type File struct {
	path string
	gist *gist.Client

	mu      sync.RWMutex
	byToken map[string]*fileBot
	byID    map[string]*fileBot
}

type fileConfig struct {
	Bots []*fileBot `yaml:"bots"`
}

type fileBot struct {
	ID         string `yaml:"id"`
	Token      string `yaml:"token"`
	Username   string `yaml:"username"`
	Name       string `yaml:"name"`
	Secret     string `yaml:"secret"`
	Script     string `yaml:"script"`
	ScriptFile string `yaml:"script_file"`
	Gist       string `yaml:"gist"`
}

func (b *fileBot) bot() Bot {
	return Bot{ID: b.ID, Token: b.Token, Username: b.Username, Name: b.Name, Secret: b.Secret}
}

// OpenFile reads the registry file at path.
func OpenFile(ctx context.Context, path string, opts FileOptions) (*File, error) {
	f := &File{path: path, gist: opts.Gist}
	if f.gist == nil {
		f.gist = &gist.Client{}
	}
	if err := f.Reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the registry file. On error, the previous contents are kept.
func (f *File) Reload(ctx context.Context) error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("parsing registry %s: %w", f.path, err)
	}

	byToken := make(map[string]*fileBot, len(cfg.Bots))
	byID := make(map[string]*fileBot, len(cfg.Bots))
	var errs []error
	for i, b := range cfg.Bots {
		if b.Token == "" {
			errs = append(errs, fmt.Errorf("bot #%d: token is required", i+1))
			continue
		}
		if b.ID == "" {
			b.ID = DeriveID(b.Token)
		}
		if err := checkID(b.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if n := countSet(b.Script, b.ScriptFile, b.Gist); n != 1 {
			errs = append(errs, fmt.Errorf("bot %q: exactly one of script, script_file and gist must be set", b.ID))
			continue
		}
		if _, dup := byID[b.ID]; dup {
			errs = append(errs, fmt.Errorf("bot %q: duplicate id", b.ID))
			continue
		}
		if _, dup := byToken[b.Token]; dup {
			errs = append(errs, fmt.Errorf("bot %q: duplicate token", b.ID))
			continue
		}
		byToken[b.Token] = b
		byID[b.ID] = b
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid registry %s: %w", f.path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.byToken = byToken
	f.byID = byID
	return nil
}

func countSet(vals ...string) int {
	var n int
	for _, v := range vals {
		if v != "" {
			n++
		}
	}
	return n
}

// LookupToken implements [Registry].
func (f *File) LookupToken(ctx context.Context, token string) (Bot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.byToken[token]
	if !ok {
		return Bot{}, ErrNotFound
	}
	return b.bot(), nil
}

// Script implements [Registry].
func (f *File) Script(ctx context.Context, botID string) (string, error) {
	f.mu.RLock()
	b, ok := f.byID[botID]
	f.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	switch {
	case b.ScriptFile != "":
		path := b.ScriptFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(f.path), path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(src), nil
	case b.Gist != "":
		id, name, _ := strings.Cut(b.Gist, "/")
		return f.gist.File(ctx, id, name)
	}
	return b.Script, nil
}
