// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package storage

import (
	"fmt"
	"log/slog"

	"go.astrophena.name/starhost/internal/starlark/interpreter"
	"go.astrophena.name/starhost/internal/starlark/starconv"
	"go.astrophena.name/starhost/internal/store"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module returns a Starlark module backed by c.
func Module(c *store.Client, logger *slog.Logger) *starlarkstruct.Module {
	if logger == nil {
		logger = slog.Default()
	}
	m := &module{c: c, logger: logger}
	return &starlarkstruct.Module{
		Name: "storage",
		Members: starlark.StringDict{
			"set":    starlark.NewBuiltin("storage.set", m.set),
			"get":    starlark.NewBuiltin("storage.get", m.get),
			"delete": starlark.NewBuiltin("storage.delete", m.delete),
			"exists": starlark.NewBuiltin("storage.exists", m.exists),
			"keys":   starlark.NewBuiltin("storage.keys", m.keys),
			"clear":  starlark.NewBuiltin("storage.clear", m.clear),
		},
	}
}

type module struct {
	c      *store.Client
	logger *slog.Logger
}

func okOrNone(ok bool) starlark.Value {
	if ok {
		return starlark.True
	}
	return starlark.None
}

func (m *module) set(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key   string
		value starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
		return nil, err
	}
	data, err := starconv.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return okOrNone(m.c.Set(interpreter.Context(thread), key, data)), nil
}

func (m *module) get(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key string
		def starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	data, found, ok := m.c.Get(interpreter.Context(thread), key)
	if !ok {
		return starlark.None, nil
	}
	if !found {
		return def, nil
	}
	v, err := starconv.Unmarshal(data)
	if err != nil {
		m.logger.Warn("decoding stored value failed", "namespace", m.c.Namespace(), "key", key, "err", err)
		return starlark.None, nil
	}
	return v, nil
}

func (m *module) delete(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
		return nil, err
	}
	return okOrNone(m.c.Delete(interpreter.Context(thread), key)), nil
}

func (m *module) exists(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
		return nil, err
	}
	exists, ok := m.c.Exists(interpreter.Context(thread), key)
	if !ok {
		return starlark.None, nil
	}
	return starlark.Bool(exists), nil
}

func (m *module) keys(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	keys, ok := m.c.Keys(interpreter.Context(thread))
	if !ok {
		return starlark.None, nil
	}
	return starconv.ToValue(keys)
}

func (m *module) clear(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return okOrNone(m.c.Clear(interpreter.Context(thread))), nil
}
