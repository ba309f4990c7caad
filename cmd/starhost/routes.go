// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.astrophena.name/starhost/internal/registry"
	"go.astrophena.name/starhost/internal/sandbox"
	"go.astrophena.name/starhost/internal/scriptcache"
	"go.astrophena.name/starhost/internal/web"

	"github.com/arl/statsviz"
)

// healthNamespace is a storage namespace no bot can have, since registries
// reject bot ids with a colon (see registry.ErrInvalidID).
const healthNamespace = "starhost:health"

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()
	e.adminMux = http.NewServeMux()

	// Public mux.
	e.mux.HandleFunc("/", e.handleRoot)
	e.mux.HandleFunc("POST /webhook/{token}", e.dispatcher.HandleWebhook)

	// Health check.
	health := web.Health(e.mux)
	health.RegisterFunc("scripts", func(context.Context) (string, bool) {
		return fmt.Sprintf("%d cached", e.scripts.Len()), true
	})
	health.RegisterFunc("invocations", func(context.Context) (string, bool) {
		return fmt.Sprintf("%d running", e.dispatcher.Running()), true
	})
	health.RegisterFunc("store", func(ctx context.Context) (string, bool) {
		if _, err := e.store.Exists(ctx, healthNamespace, "ping"); err != nil {
			return err.Error(), false
		}
		return "reachable", true
	})
	if e.rdb != nil {
		health.RegisterFunc("redis", func(ctx context.Context) (string, bool) {
			if err := e.rdb.Ping(ctx).Err(); err != nil {
				return err.Error(), false
			}
			return "reachable", true
		})
	}

	// Script environment documentation.
	e.mux.HandleFunc("GET /env", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, sandbox.Documentation())
	})

	// Admin mux.
	e.adminMux.HandleFunc("POST /bots/{id}/reload", e.handleReload)
	// Runtime metrics.
	statsviz.Register(e.adminMux)
	// Log streaming.
	e.adminMux.Handle("/debug/logs", e.logStream)

	admin := e.adminAuth(e.adminMux)
	e.mux.Handle("/bots/", admin)
	e.mux.Handle("/debug/", admin)
}

func (e *engine) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}
	http.Redirect(w, r, "/env", http.StatusFound)
}

// adminAuth requires the admin token as a bearer token. Without a configured
// token, admin routes are open in development mode and closed in production.
func (e *engine) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.adminToken == "" {
			if e.prod {
				web.RespondJSONError(w, r, web.ErrNotFound)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(e.adminToken)) != 1 {
			web.RespondJSONError(w, r, web.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type reloadResponse struct {
	OK    bool   `json:"ok"`
	BotID string `json:"bot_id"`
}

// handleReload rereads the registry, refreshes the cached script of the bot
// and announces the change to other instances.
func (e *engine) handleReload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if rl, ok := e.registry.(registry.Reloader); ok {
		if err := rl.Reload(r.Context()); err != nil {
			web.RespondJSONError(w, r, errors.New(e.scrub(err.Error())))
			return
		}
	}

	if _, err := e.scripts.Refresh(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			err = fmt.Errorf("%w: %v", web.ErrNotFound, err)
		}
		web.RespondJSONError(w, r, err)
		return
	}

	if e.rdb != nil {
		if err := scriptcache.Notify(r.Context(), e.rdb, id); err != nil {
			e.logger.Warn("announcing script update failed", "bot_id", id, "err", err)
		}
	}

	e.logger.Info("script reloaded", "bot_id", id)
	web.RespondJSON(w, reloadResponse{OK: true, BotID: id})
}
