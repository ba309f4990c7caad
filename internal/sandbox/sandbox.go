// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sandbox runs bot scripts.
//
// A script sees only the values placed in its namespace: the bot, http and
// storage capability modules bound to one bot, the event entities, a halt
// builtin, bot configuration and a few pure modules. Threads have no load
// function, so nothing else is reachable.
//
// Every run ends in one of three outcomes. A script that returns normally is
// Completed. A script that calls halt() is Halted, regardless of how the
// interpreter unwinds afterwards. Anything else, including exceeding the time
// budget, is Faulted.
package sandbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.astrophena.name/starhost/internal/api/telegram"
	"go.astrophena.name/starhost/internal/fetch"
	"go.astrophena.name/starhost/internal/starlark/interpreter"
	"go.astrophena.name/starhost/internal/store"
	"go.astrophena.name/starhost/internal/update"

	"go.starlark.net/starlark"
)

// DefaultTimeout is the time budget of a single run.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is the cause of a run that exceeded its time budget.
var ErrTimeout = errors.New("script execution timed out")

// Status is the final state of a run.
type Status int

const (
	// Completed means the script ran to the end.
	Completed Status = iota
	// Halted means the script stopped itself with halt().
	Halted
	// Faulted means the script failed.
	Faulted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of a run.
type Outcome struct {
	Status Status
	// Cause is set for Faulted outcomes.
	Cause error
}

// Invocation describes a single run of a script: the bot it runs for, the
// event it handles and the capabilities it may use.
type Invocation struct {
	BotID       string
	BotUsername string
	Event       update.Event

	Telegram *telegram.Client
	HTTP     *fetch.Client
	Storage  *store.Client
	// Logger receives script output and capability failures. If nil, the
	// Sandbox logger is used.
	Logger *slog.Logger
}

// Sandbox runs scripts with resource limits.
type Sandbox struct {
	// Timeout is the time budget of a run. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxSteps limits the number of Starlark computation steps of a run. Zero
	// means no limit.
	MaxSteps uint64
	// Logger is used when an invocation has none. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

const haltedKey = "halted"

// Run executes script for inv. Capability calls made by the script use a
// context derived from ctx that ends with the time budget.
func (s *Sandbox) Run(ctx context.Context, script *Script, inv Invocation) Outcome {
	prog, err := script.Program()
	if err != nil {
		return Outcome{Status: Faulted, Cause: err}
	}

	inv.Logger = cmp.Or(inv.Logger, s.Logger, slog.Default())
	starlarkLogger := inv.Logger.WithGroup("starlark")

	ctx, cancel := context.WithTimeoutCause(ctx, cmp.Or(s.Timeout, DefaultTimeout), ErrTimeout)
	defer cancel()

	thread, release := interpreter.NewThread(ctx, interpreter.Options{
		Name:     inv.BotID,
		Print:    func(msg string) { starlarkLogger.Info(msg) },
		MaxSteps: s.MaxSteps,
	})
	defer release()

	err = execute(ctx, thread, prog, inv)

	switch {
	case isHalted(thread):
		return Outcome{Status: Halted}
	case err == nil:
		return Outcome{Status: Completed}
	case errors.Is(context.Cause(ctx), ErrTimeout):
		return Outcome{Status: Faulted, Cause: ErrTimeout}
	case ctx.Err() != nil:
		return Outcome{Status: Faulted, Cause: context.Cause(ctx)}
	}
	return Outcome{Status: Faulted, Cause: err}
}

func execute(ctx context.Context, thread *starlark.Thread, prog *starlark.Program, inv Invocation) error {
	predeclared := environment(inv).StringDict()
	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return err
	}
	if isHalted(thread) || inv.Event.Kind != update.KindMessage || inv.Event.Message == nil {
		return nil
	}

	msg := predeclared["message"]
	if fn, ok := callable(globals, "on_message"); ok {
		_, err := starlark.Call(thread, fn, starlark.Tuple{msg}, nil)
		return err
	}
	text := inv.Event.Message.Text
	if fn, ok := callable(globals, "handle_message"); ok {
		_, err := starlark.Call(thread, fn, starlark.Tuple{starlark.String(text), msg}, nil)
		return err
	}
	if inv.Telegram != nil {
		inv.Telegram.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: inv.Event.Message.Chat.ID,
			Text:   "Echo: " + text,
		})
	}
	return nil
}

func callable(globals starlark.StringDict, name string) (starlark.Callable, bool) {
	fn, ok := globals[name].(starlark.Callable)
	return fn, ok
}

func halt(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	thread.SetLocal(haltedKey, true)
	thread.Cancel("halted")
	return starlark.None, nil
}

func isHalted(thread *starlark.Thread) bool {
	halted, _ := thread.Local(haltedKey).(bool)
	return halted
}
