// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sandbox

import (
	"sync"

	"go.astrophena.name/starhost/internal/starlark/interpreter"

	"go.starlark.net/starlark"
)

// Script is the source of a bot script together with its compiled form.
// It is compiled on first use and safe for concurrent use.
type Script struct {
	Name   string
	Source string

	once sync.Once
	prog *starlark.Program
	err  error
}

// NewScript returns a Script for src. name is used in error messages and
// stack traces.
func NewScript(name, src string) *Script {
	return &Script{Name: name, Source: src}
}

// Program returns the compiled script, compiling it if needed. A compilation
// error is remembered and returned on every call.
func (s *Script) Program() (*starlark.Program, error) {
	s.once.Do(func() {
		s.prog, s.err = interpreter.Compile(s.Name, s.Source, isPredeclared)
	})
	return s.prog, s.err
}
