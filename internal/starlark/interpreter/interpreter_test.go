// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package interpreter

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/starhost/internal/testutil"

	"go.starlark.net/starlark"
)

func TestCompileDialect(t *testing.T) {
	const src = `
counter = 0
while counter < 3:
    counter += 1
if counter == 3:
    seen = set([1, 2, 2])
counter = len(seen)
`
	prog, err := Compile("test.star", src, func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	thread, release := NewThread(t.Context(), Options{Name: "test"})
	defer release()
	globals, err := prog.Init(thread, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, globals["counter"].String(), "2")
}

func TestCompileRejectsLoad(t *testing.T) {
	prog, err := Compile("test.star", `load("os.star", "exec")`, func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	thread, release := NewThread(t.Context(), Options{})
	defer release()
	if _, err := prog.Init(thread, nil); err == nil {
		t.Fatal("load succeeded, want error")
	}
}

func TestCompilePredeclared(t *testing.T) {
	_, err := Compile("test.star", `x = undefined_name`, func(string) bool { return false })
	if err == nil || !strings.Contains(err.Error(), "undefined_name") {
		t.Fatalf("want resolve error mentioning undefined_name, got %v", err)
	}
	if _, err := Compile("test.star", `x = known`, func(name string) bool { return name == "known" }); err != nil {
		t.Fatal(err)
	}
}

func TestNewThreadCancelledByContext(t *testing.T) {
	prog, err := Compile("loop.star", "while True:\n    pass\n", func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	thread, release := NewThread(ctx, Options{})
	defer release()

	_, err = prog.Init(thread, nil)
	if err == nil || !strings.Contains(err.Error(), "deadline exceeded") {
		t.Fatalf("want cancellation error, got %v", err)
	}
}

func TestMaxSteps(t *testing.T) {
	prog, err := Compile("loop.star", "while True:\n    pass\n", func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	thread, release := NewThread(t.Context(), Options{MaxSteps: 1000})
	defer release()
	if _, err := prog.Init(thread, nil); err == nil {
		t.Fatal("infinite loop finished, want error")
	}
}

func TestPrintAndContext(t *testing.T) {
	var printed []string
	type key struct{}
	ctx := context.WithValue(t.Context(), key{}, "value")
	thread, release := NewThread(ctx, Options{Print: func(msg string) { printed = append(printed, msg) }})
	defer release()

	if got := Context(thread).Value(key{}); got != "value" {
		t.Fatalf("Context(thread) lost value, got %v", got)
	}
	if Context(&starlark.Thread{}) == nil {
		t.Fatal("Context of a bare thread is nil")
	}

	prog, err := Compile("print.star", `print("hello", 1)`, func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := prog.Init(thread, nil); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, printed, []string{"hello 1"})
}
