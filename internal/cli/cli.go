// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs a long-lived command: it parses flags, exposes the process
// environment through a context and turns the returned error into an exit
// status.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.astrophena.name/starhost/internal/version"
)

// Main runs app until it returns or the process receives SIGINT or SIGTERM,
// then exits with a non-zero status if app failed.
func Main(app App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Run(WithEnv(ctx, osEnv()), app)
	cancel()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports err to stderr when the user has not seen it yet and
// returns the status the process should exit with.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil, errors.Is(err, ErrExitVersion), errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, ErrInvalidArgs):
		if !errors.As(err, new(*silentError)) {
			fmt.Fprintln(stderr, err)
		}
		return 2
	case errors.As(err, new(*silentError)):
		return 1
	}
	fmt.Fprintln(stderr, err)
	return 1
}

// silentError wraps errors already printed by the flag package.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

// ErrExitVersion is returned by Run after printing the version.
var ErrExitVersion = &silentError{errors.New("version printed")}

// ErrInvalidArgs marks configuration errors, whether they come from flags or
// environment variables. Join or wrap it with the actual problem.
var ErrInvalidArgs = errors.New("invalid arguments")

// App is a command.
type App interface {
	Run(context.Context) error
}

// HasFlags is an App that defines flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// Env is what a command may know about its process: arguments left after
// flag parsing, environment variables and where to write diagnostics.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stderr io.Writer
}

func osEnv() Env {
	return Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stderr: os.Stderr,
	}
}

type envKey struct{}

// WithEnv returns a copy of ctx carrying env.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the Env carried by ctx, falling back to the real process.
func GetEnv(ctx context.Context) Env {
	if env, ok := ctx.Value(envKey{}).(Env); ok {
		return env
	}
	return osEnv()
}

// Run parses flags from the Env carried by ctx and runs app.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)

	flags := flag.NewFlagSet(version.CmdName(), flag.ContinueOnError)
	flags.SetOutput(env.Stderr)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(flags)
	}
	showVersion := flags.Bool("version", false, "Print version and exit.")
	flags.Usage = func() {
		if d := docComment(); d != "" {
			fmt.Fprintln(env.Stderr, d)
		}
		fmt.Fprint(env.Stderr, "Flags:\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(env.Args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &silentError{errors.Join(ErrInvalidArgs, err)}
	}
	if *showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}

	env.Args = flags.Args()
	return app.Run(WithEnv(ctx, env))
}

var (
	docMu  sync.Mutex
	docSrc []byte
)

// SetDocComment registers the source of the doc.go file of the command. The
// text of its /* */ comment is printed above the flags in the usage message:
//
//	//go:embed doc.go
//	var doc []byte
//
//	func init() { cli.SetDocComment(doc) }
func SetDocComment(src []byte) {
	docMu.Lock()
	defer docMu.Unlock()
	docSrc = src
}

func docComment() string {
	docMu.Lock()
	defer docMu.Unlock()

	var (
		sb      strings.Builder
		started bool
	)
	for line := range strings.Lines(string(docSrc)) {
		switch strings.TrimRight(line, "\n") {
		case "/*":
			started = true
			continue
		case "*/":
			return sb.String()
		}
		if started {
			sb.WriteString(line)
		}
	}
	return sb.String()
}
