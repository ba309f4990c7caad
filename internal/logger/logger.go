// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger builds the structured logger of Starhost and keeps the most
// recent log lines around for the /debug/logs endpoint.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Options configure a logger returned by [New].
type Options struct {
	// JSON selects machine-readable output. Otherwise log lines are formatted
	// for humans.
	JSON bool
	// Level is the minimum level of records that are logged.
	Level slog.Level
	// Stream, if not nil, receives a copy of every log line.
	Stream *Streamer
}

// New returns a structured logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.Stream != nil {
		w = io.MultiWriter(w, opts.Stream)
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
	}
	return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevel(opts.Level),
		ReportTimestamp: true,
		Formatter:       charmlog.TextFormatter,
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func charmLevel(level slog.Level) charmlog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmlog.DebugLevel
	case level <= slog.LevelInfo:
		return charmlog.InfoLevel
	case level <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}

// Streamer is an io.Writer that remembers the last lines written to it and
// fans new lines out to subscribers. As an http.Handler it serves the
// remembered lines followed by new ones until the client goes away.
type Streamer struct {
	mu      sync.Mutex
	lines   []string // ring of complete lines
	next    int      // index in lines to overwrite
	partial string   // written text not yet terminated by a newline
	subs    map[chan string]struct{}
}

// NewStreamer returns a Streamer remembering up to size lines.
func NewStreamer(size int) *Streamer {
	return &Streamer{
		lines: make([]string, 0, max(size, 1)),
		subs:  make(map[chan string]struct{}),
	}
}

// Write implements io.Writer. It never fails.
func (s *Streamer) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.partial + string(b)
	s.partial = ""
	for line := range strings.Lines(text) {
		if !strings.HasSuffix(line, "\n") {
			s.partial = line
			break
		}
		s.add(line)
	}
	return len(b), nil
}

func (s *Streamer) add(line string) {
	if len(s.lines) < cap(s.lines) {
		s.lines = append(s.lines, line)
	} else {
		s.lines[s.next] = line
		s.next = (s.next + 1) % len(s.lines)
	}
	for sub := range s.subs {
		// Slow subscribers miss lines.
		select {
		case sub <- line:
		default:
		}
	}
}

// Lines returns the remembered lines, oldest first.
func (s *Streamer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Streamer) snapshot() []string {
	out := make([]string, 0, len(s.lines))
	out = append(out, s.lines[s.next:]...)
	return append(out, s.lines[:s.next]...)
}

// Subscribe returns the remembered lines and a channel receiving every line
// written afterwards. Call cancel to unsubscribe.
func (s *Streamer) Subscribe() (backlog []string, lines <-chan string, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := make(chan string, cap(s.lines)+1)
	s.subs[sub] = struct{}{}
	return s.snapshot(), sub, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub)
		}
	}
}

// ServeHTTP streams log lines. With ?bot=id only lines about that bot are
// sent. Clients accepting text/event-stream get server-sent events.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot")
	sse := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")

	w.Header().Set("Cache-Control", "no-cache")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	backlog, lines, cancel := s.Subscribe()
	defer cancel()

	write := func(line string) {
		if botID != "" && !aboutBot(line, botID) {
			return
		}
		if sse {
			fmt.Fprintf(w, "event: logline\ndata: %s\n", line)
			return
		}
		io.WriteString(w, line)
	}
	for _, line := range backlog {
		write(line)
	}
	flush()

	for {
		select {
		case line := <-lines:
			write(line)
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

// aboutBot reports whether a text or JSON log line carries the bot_id
// attribute with the given value.
func aboutBot(line, id string) bool {
	return strings.Contains(line, "bot_id="+id+" ") ||
		strings.HasSuffix(strings.TrimSuffix(line, "\n"), "bot_id="+id) ||
		strings.Contains(line, `"bot_id":"`+id+`"`)
}
