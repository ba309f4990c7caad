// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.astrophena.name/starhost/internal/api/gist"
	"go.astrophena.name/starhost/internal/audit"
	"go.astrophena.name/starhost/internal/cli"
	"go.astrophena.name/starhost/internal/dispatch"
	"go.astrophena.name/starhost/internal/httplogger"
	"go.astrophena.name/starhost/internal/logger"
	"go.astrophena.name/starhost/internal/registry"
	"go.astrophena.name/starhost/internal/sandbox"
	"go.astrophena.name/starhost/internal/scriptcache"
	"go.astrophena.name/starhost/internal/store"
	"go.astrophena.name/starhost/internal/syncx"
	"go.astrophena.name/starhost/internal/systemd"
	"go.astrophena.name/starhost/internal/web"

	"github.com/redis/go-redis/v9"
)

func main() { cli.Main(new(engine)) }

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.addr, "addr", "", "Listen on `host:port`.")
	fs.StringVar(&e.registryDSN, "registry", "", "Path to the bots YAML file or a postgres:// URL.")
	fs.StringVar(&e.storeDSN, "store", "", "Storage backend: memory, postgres:// or redis:// URL.")
	fs.StringVar(&e.redisURL, "redis", "", "Redis `URL` for script update notifications.")
	fs.StringVar(&e.auditDSN, "audit", "", "Audit sink: log, amqp:// or postgres:// URL.")
	fs.DurationVar(&e.timeout, "timeout", 0, "Script execution time limit.")
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode.")
	fs.BoolVar(&e.verbose, "v", false, "Log debug messages, including outgoing HTTP requests.")
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// Load configuration from environment variables.
	e.addr = cmp.Or(e.addr, env.Getenv("ADDR"), defaultAddr)
	if port := env.Getenv("PORT"); port != "" {
		e.addr = ":" + port
	}
	e.adminToken = cmp.Or(e.adminToken, env.Getenv("ADMIN_TOKEN"))
	e.auditDSN = cmp.Or(e.auditDSN, env.Getenv("AUDIT"))
	e.ghToken = cmp.Or(e.ghToken, env.Getenv("GH_TOKEN"))
	e.redisURL = cmp.Or(e.redisURL, env.Getenv("REDIS_URL"))
	e.registryDSN = cmp.Or(e.registryDSN, env.Getenv("REGISTRY"), defaultRegistry)
	e.storeDSN = cmp.Or(e.storeDSN, env.Getenv("STORE"))
	if e.timeout == 0 {
		if s := env.Getenv("SCRIPT_TIMEOUT"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return errors.Join(cli.ErrInvalidArgs, err)
			}
			e.timeout = d
		}
	}

	e.stderr = env.Stderr
	e.getenv = env.Getenv

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return errors.Join(err, e.close())
	}

	// Used in tests.
	if e.noServerStart {
		return e.close()
	}
	defer e.close()

	if e.rdb != nil {
		if err := scriptcache.Watch(ctx, e.scripts, e.rdb); err != nil {
			return err
		}
	}

	if e.prod {
		e.logger.Info("running in production mode")
	} else {
		e.logger.Info("running in development mode")
	}

	go systemd.WatchdogLoop(ctx, e.logger, e.getenv)

	err := e.srv.ListenAndServe(ctx)
	systemd.Notify(e.logger, e.getenv, systemd.Stopping)
	e.dispatcher.Wait()
	return err
}

const (
	defaultAddr     = "localhost:3000"
	defaultRegistry = "bots.yaml"
	logLineLimit    = 300
)

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	audit      audit.Sink
	dispatcher *dispatch.Dispatcher
	gistc      *gist.Client
	logStream  *logger.Streamer
	logger     *slog.Logger
	mux        *http.ServeMux
	adminMux   *http.ServeMux
	rdb        *redis.Client
	registry   registry.Registry
	sandbox    *sandbox.Sandbox
	scripts    *scriptcache.Cache
	scrubber   *strings.Replacer
	srv        *web.Server
	store      store.Store

	// configuration, read-only after initialization
	addr        string
	adminToken  string
	auditDSN    string
	getenv      func(string) string
	ghToken     string
	httpc       *http.Client
	prod        bool
	redisURL    string
	registryDSN string
	stderr      io.Writer
	storeDSN    string
	timeout     time.Duration
	verbose     bool
	// for tests
	noServerStart bool
	ready         func(addr string) // see web.Server.Ready
}

func (e *engine) doInit(ctx context.Context) error {
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.getenv == nil {
		e.getenv = os.Getenv
	}

	level := slog.LevelInfo
	if e.verbose {
		level = slog.LevelDebug
	}
	e.logStream = logger.NewStreamer(logLineLimit)
	e.logger = logger.New(e.stderr, logger.Options{
		JSON:   e.prod,
		Level:  level,
		Stream: e.logStream,
	})

	if e.httpc == nil {
		e.httpc = &http.Client{Timeout: 30 * time.Second}
	}
	e.httpc = &http.Client{
		Transport: httplogger.New(e.httpc.Transport, e.logger),
		Timeout:   e.httpc.Timeout,
	}

	var scrubPairs []string
	for _, val := range []string{
		e.adminToken,
		e.ghToken,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	e.gistc = &gist.Client{
		Token:      e.ghToken,
		HTTPClient: e.httpc,
	}

	var err error
	if e.store, err = store.Open(ctx, e.storeDSN); err != nil {
		return err
	}
	if e.registry, err = registry.Open(ctx, e.registryDSN, registry.FileOptions{Gist: e.gistc}); err != nil {
		return err
	}
	if e.audit, err = audit.Open(ctx, e.auditDSN, e.logger); err != nil {
		return err
	}
	if e.redisURL != "" {
		opts, err := redis.ParseURL(e.redisURL)
		if err != nil {
			return err
		}
		e.rdb = redis.NewClient(opts)
		if err := e.rdb.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	e.scripts = scriptcache.New(e.registry, scriptcache.Options{Logger: e.logger})
	e.sandbox = &sandbox.Sandbox{
		Timeout: e.timeout,
		Logger:  e.logger,
	}
	e.dispatcher = dispatch.New(dispatch.Opts{
		Registry:   e.registry,
		Scripts:    e.scripts,
		Sandbox:    e.sandbox,
		Store:      e.store,
		Audit:      e.audit,
		HTTPClient: e.httpc,
		Logger:     e.logger,
	})

	e.initRoutes()
	e.srv = &web.Server{
		Addr:   e.addr,
		Mux:    e.mux,
		Logger: e.logger,
		Ready: func(addr string) {
			systemd.Notify(e.logger, e.getenv, systemd.Ready)
			if e.ready != nil {
				e.ready(addr)
			}
		},
		// Room for the script, the fault report and the Bot API calls after
		// it.
		WriteTimeout: cmp.Or(e.timeout, sandbox.DefaultTimeout) + 20*time.Second,
	}

	return nil
}

// close releases the backends opened by doInit.
func (e *engine) close() error {
	var errs []error
	if e.audit != nil {
		errs = append(errs, e.audit.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if c, ok := e.registry.(interface{ Close() }); ok {
		c.Close()
	}
	if e.rdb != nil {
		errs = append(errs, e.rdb.Close())
	}
	return errors.Join(errs...)
}

func (e *engine) scrub(s string) string {
	if e.scrubber == nil {
		return s
	}
	return e.scrubber.Replace(s)
}
