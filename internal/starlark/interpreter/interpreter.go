// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package interpreter contains the plumbing shared by everything that runs
// Starlark code: compilation options, thread construction and propagation of
// [context.Context] to builtins.
package interpreter

import (
	"context"
	"errors"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const contextKey = "context"

// FileOptions returns the dialect of Starlark accepted by the host. It
// enables while loops, sets, top-level control flow and global reassignment.
// Recursion stays disabled.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
}

// Compile parses and resolves src. isPredeclared reports which names the
// program may reference without defining them.
func Compile(filename, src string, isPredeclared func(string) bool) (*starlark.Program, error) {
	_, prog, err := starlark.SourceProgramOptions(FileOptions(), filename, src, isPredeclared)
	return prog, err
}

// Options configure a thread created by [NewThread].
type Options struct {
	// Name is the thread name, shown in stack traces.
	Name string
	// Print receives the output of the print builtin. If nil, output is
	// discarded.
	Print func(msg string)
	// MaxSteps limits the number of computation steps. Zero means no limit.
	MaxSteps uint64
}

// NewThread returns a Starlark thread carrying ctx. The thread is cancelled
// when ctx is done. Call release once the thread is no longer used.
//
// The returned thread has no Load function: the load statement always fails.
func NewThread(ctx context.Context, opts Options) (thread *starlark.Thread, release func()) {
	thread = &starlark.Thread{
		Name: opts.Name,
		Print: func(_ *starlark.Thread, msg string) {
			if opts.Print != nil {
				opts.Print(msg)
			}
		},
	}
	if opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(opts.MaxSteps)
	}
	SetContext(thread, ctx)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(cancelReason(ctx))
	})
	return thread, func() { stop() }
}

func cancelReason(ctx context.Context) string {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return "deadline exceeded"
	}
	return context.Cause(ctx).Error()
}

// SetContext attaches ctx to thread.
func SetContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(contextKey, ctx)
}

// Context returns the context attached to thread, or [context.Background] if
// there is none.
func Context(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
