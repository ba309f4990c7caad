// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package dispatch turns webhook deliveries into script invocations.
//
// Every delivery is recorded in the audit sink, classified and, unless it is
// neither a message nor a callback query, handled by the script of the bot in
// a sandbox with a fresh set of capabilities. When the script faults, one
// error report is sent back to the user on a best-effort basis.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/starhost/internal/api/telegram"
	"go.astrophena.name/starhost/internal/audit"
	"go.astrophena.name/starhost/internal/fetch"
	"go.astrophena.name/starhost/internal/registry"
	"go.astrophena.name/starhost/internal/sandbox"
	"go.astrophena.name/starhost/internal/scriptcache"
	"go.astrophena.name/starhost/internal/store"
	"go.astrophena.name/starhost/internal/syncx"
	"go.astrophena.name/starhost/internal/update"
	"go.astrophena.name/starhost/internal/web"

	"github.com/google/uuid"
)

// DefaultMaxConcurrent is the default limit of concurrently running
// invocations.
const DefaultMaxConcurrent = 64

// MaxUpdateSize is the largest webhook body that is accepted.
const MaxUpdateSize = 1 << 20

// Default limits of the calls made before a script runs. Each of them
// holds an invocation slot.
const (
	DefaultAuditTimeout      = 5 * time.Second
	DefaultScriptLoadTimeout = 10 * time.Second
)

// Opts configure a Dispatcher.
type Opts struct {
	// Registry resolves webhook tokens to bots.
	Registry registry.Registry
	// Scripts provides bot scripts.
	Scripts *scriptcache.Cache
	// Sandbox runs scripts.
	Sandbox *sandbox.Sandbox
	// Store backs the storage capability. Defaults to an in-memory store.
	Store store.Store
	// Audit records deliveries. Defaults to a LogSink.
	Audit audit.Sink
	// HTTPClient is used by the bot and http capabilities. If nil, the
	// package defaults are used.
	HTTPClient *http.Client
	// TelegramAPIURL overrides the Telegram Bot API URL.
	TelegramAPIURL string
	// MaxConcurrent limits the number of concurrently running invocations.
	// Defaults to DefaultMaxConcurrent.
	MaxConcurrent int
	// AuditTimeout bounds recording a delivery. Defaults to
	// DefaultAuditTimeout.
	AuditTimeout time.Duration
	// ScriptLoadTimeout bounds resolving the script of a bot. Defaults to
	// DefaultScriptLoadTimeout.
	ScriptLoadTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher handles webhook deliveries.
type Dispatcher struct {
	registry       registry.Registry
	scripts        *scriptcache.Cache
	sandbox        *sandbox.Sandbox
	store          store.Store
	audit          audit.Sink
	httpc          *http.Client
	telegramAPIURL string
	logger         *slog.Logger
	running        *syncx.Limiter
	auditTimeout   time.Duration
	loadTimeout    time.Duration
}

// New returns a Dispatcher.
func New(opts Opts) *Dispatcher {
	d := &Dispatcher{
		registry:       opts.Registry,
		scripts:        opts.Scripts,
		sandbox:        opts.Sandbox,
		store:          opts.Store,
		audit:          opts.Audit,
		httpc:          opts.HTTPClient,
		telegramAPIURL: opts.TelegramAPIURL,
		logger:         cmp.Or(opts.Logger, slog.Default()),
		running:        syncx.NewLimiter(cmp.Or(opts.MaxConcurrent, DefaultMaxConcurrent)),
		auditTimeout:   cmp.Or(opts.AuditTimeout, DefaultAuditTimeout),
		loadTimeout:    cmp.Or(opts.ScriptLoadTimeout, DefaultScriptLoadTimeout),
	}
	if d.sandbox == nil {
		d.sandbox = &sandbox.Sandbox{Logger: d.logger}
	}
	if d.audit == nil {
		d.audit = &audit.LogSink{Logger: d.logger}
	}
	if d.store == nil {
		d.store = store.NewMemStore()
	}
	return d
}

// Report describes how a delivery was handled.
type Report struct {
	// ID identifies the invocation in logs and audit entries.
	ID   string
	Kind update.Kind
	// Dropped is true when the delivery carried neither a message nor a
	// callback query. Nothing else is set then.
	Dropped bool
	Outcome sandbox.Outcome
	// Reported is true when the error report of a faulted invocation was
	// delivered.
	Reported bool
}

// Dispatch handles a single delivery for the bot. An error is returned only
// when ctx is done before a slot for the invocation frees up or when the
// script of the bot cannot be resolved; everything happening inside the
// script is described by the report.
func (d *Dispatcher) Dispatch(ctx context.Context, bot registry.Bot, raw []byte) (Report, error) {
	if err := d.running.Acquire(ctx); err != nil {
		return Report{}, err
	}
	defer d.running.Release()

	rep := Report{ID: uuid.NewString()}
	ev := update.Parse(raw)
	rep.Kind = ev.Kind
	logger := d.logger.With(
		slog.String("bot_id", bot.ID),
		slog.String("invocation_id", rep.ID),
		slog.String("kind", ev.Kind.String()),
	)
	if chatID, ok := ev.ChatID(); ok {
		logger = logger.With(slog.Int64("chat_id", chatID))
	}

	d.record(ctx, audit.Entry{
		ID:        rep.ID,
		BotID:     bot.ID,
		Update:    ev.Raw,
		Timestamp: time.Now().UTC(),
	}, logger)

	if ev.Kind == update.KindUnknown {
		logger.Debug("dropped update")
		rep.Dropped = true
		return rep, nil
	}

	script, err := d.loadScript(ctx, bot.ID)
	if err != nil {
		return rep, err
	}

	rep.Outcome = d.sandbox.Run(ctx, script, sandbox.Invocation{
		BotID:       bot.ID,
		BotUsername: bot.Username,
		Event:       ev,
		Telegram:    d.telegram(bot, logger),
		HTTP:        &fetch.Client{HTTPClient: d.httpc, Logger: logger},
		Storage:     store.NewClient(d.store, bot.ID, logger),
		Logger:      logger,
	})

	switch rep.Outcome.Status {
	case sandbox.Completed:
		logger.Debug("script completed")
	case sandbox.Halted:
		logger.Debug("script halted")
	case sandbox.Faulted:
		logger.Warn("script failed", "err", scrub(bot, rep.Outcome.Cause.Error()), "timeout", errors.Is(rep.Outcome.Cause, sandbox.ErrTimeout))
		rep.Reported = d.reportFault(ctx, bot, ev, rep.Outcome.Cause, logger)
	}
	return rep, nil
}

func (d *Dispatcher) record(ctx context.Context, e audit.Entry, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, d.auditTimeout)
	defer cancel()
	if err := d.audit.Record(ctx, e); err != nil {
		logger.Warn("recording update failed", "err", err)
	}
}

func (d *Dispatcher) loadScript(ctx context.Context, botID string) (*sandbox.Script, error) {
	ctx, cancel := context.WithTimeout(ctx, d.loadTimeout)
	defer cancel()
	return d.scripts.Get(ctx, botID)
}

func (d *Dispatcher) telegram(bot registry.Bot, logger *slog.Logger) *telegram.Client {
	return &telegram.Client{
		Token:      bot.Token,
		APIURL:     d.telegramAPIURL,
		HTTPClient: d.httpc,
		Logger:     logger,
	}
}

// HandleWebhook handles POST /webhook/{token}.
func (d *Dispatcher) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	bot, err := d.registry.LookupToken(r.Context(), token)
	if errors.Is(err, registry.ErrNotFound) {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}
	if err != nil {
		web.RespondJSONError(w, r, errors.New(strings.ReplaceAll(err.Error(), token, "[EXPUNGED]")))
		return
	}
	if bot.Secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != bot.Secret {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUpdateSize))
	if err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %w", web.ErrBadRequest, err))
		return
	}

	// Telegram may drop the connection while the script runs; the invocation
	// still finishes within the sandbox time budget.
	ctx := context.WithoutCancel(r.Context())
	if _, err := d.Dispatch(ctx, bot, body); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			err = fmt.Errorf("%w: %v", web.ErrNotFound, err)
		}
		web.RespondJSONError(w, r, err)
		return
	}

	web.RespondJSON(w, ok)
}

var ok = map[string]bool{
	"ok": true,
}

// Running returns the number of invocations in progress.
func (d *Dispatcher) Running() int { return d.running.Running() }

// Wait blocks until all running invocations finish.
func (d *Dispatcher) Wait() {
	d.running.Wait()
}
