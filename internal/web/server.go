// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves a mux until its context is canceled. Fields must not be
// changed once ListenAndServe is called.
type Server struct {
	Addr string
	Mux  *http.ServeMux
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Ready, if not nil, is called with the bound address once the server
	// accepts connections.
	Ready func(addr string)
	// WriteTimeout bounds how long a handler may take to respond. Webhook
	// handlers run scripts synchronously, so it must exceed the script time
	// limit. Zero means no limit.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown. Defaults to 30 seconds.
	ShutdownTimeout time.Duration
}

var (
	errNoAddr = errors.New("web: Server.Addr is empty")
	errNilMux = errors.New("web: Server.Mux is nil")
)

// ListenAndServe registers the health endpoint on s.Mux and serves it. When
// ctx is canceled it waits for in-flight requests and returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr == "" {
		return errNoAddr
	}
	if s.Mux == nil {
		return errNilMux
	}
	logger := cmp.Or(s.Logger, slog.Default())

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr, err)
	}
	addr := l.Addr().String()
	logger.Info("listening", "addr", addr)

	Health(s.Mux)

	httpSrv := &http.Server{
		Handler:           s.Mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.Serve(l) }()

	if s.Ready != nil {
		s.Ready(addr)
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("gracefully shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cmp.Or(s.ShutdownTimeout, 30*time.Second))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
