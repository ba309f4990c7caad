// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides a http.RoundTripper middleware that logs
// outgoing HTTP requests.
//
// Only the method, the host and the last path element are logged: Telegram
// Bot API URLs carry the bot token in the path.
package httplogger

import (
	"cmp"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// New returns a http.RoundTripper that logs every request made through t at
// debug level. A nil t means http.DefaultTransport.
func New(t http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &loggingTransport{
		transport: t,
		logger:    cmp.Or(logger, slog.Default()),
	}
}

type loggingTransport struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("host", r.URL.Host),
		slog.String("path", lastElem(r.URL.Path)),
		slog.Duration("duration", time.Since(start)),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	t.logger.DebugContext(r.Context(), "http request", attrs...)

	return resp, err
}

func lastElem(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i:]
	}
	return path
}
