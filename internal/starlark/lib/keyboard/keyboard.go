// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package keyboard

import (
	"fmt"
	"strings"

	"go.astrophena.name/starhost/internal/starlark/starconv"
	"go.astrophena.name/starhost/internal/update"

	"go.starlark.net/starlark"
)

// Builtins returns the keyboard and button builtins.
func Builtins() starlark.StringDict {
	return starlark.StringDict{
		"keyboard": starlark.NewBuiltin("keyboard", makeKeyboard),
		"button":   starlark.NewBuiltin("button", makeButton),
	}
}

// Button is a Starlark value wrapping an [update.Button].
type Button struct{ b update.Button }

var (
	_ starlark.Value    = (*Button)(nil)
	_ starlark.HasAttrs = (*Button)(nil)
)

func (b *Button) String() string {
	return fmt.Sprintf("button(%q, %s = %q)", b.b.Label, b.b.Action.Kind, b.b.Action.Value)
}
func (b *Button) Type() string          { return "button" }
func (b *Button) Freeze()               {}
func (b *Button) Truth() starlark.Bool  { return starlark.True }
func (b *Button) Hash() (uint32, error) { return starlark.String(b.String()).Hash() }

func (b *Button) Attr(name string) (starlark.Value, error) {
	switch name {
	case "label":
		return starlark.String(b.b.Label), nil
	case "action":
		return starlark.String(b.b.Action.Kind), nil
	case "value":
		return starlark.String(b.b.Action.Value), nil
	}
	return nil, nil
}

func (b *Button) AttrNames() []string { return []string{"action", "label", "value"} }

func (b *Button) raw() map[string]any {
	return map[string]any{
		"label":  b.b.Label,
		"action": map[string]any{string(b.b.Action.Kind): b.b.Action.Value},
	}
}

// Keyboard is a Starlark value wrapping an [update.KeyboardMarkup].
type Keyboard struct{ km update.KeyboardMarkup }

var (
	_ starlark.Value    = (*Keyboard)(nil)
	_ starlark.HasAttrs = (*Keyboard)(nil)
)

func (k *Keyboard) String() string {
	var sb strings.Builder
	sb.WriteString("keyboard(")
	for i, row := range k.km.Rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j, b := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString((&Button{b: b}).String())
		}
		sb.WriteString("]")
	}
	sb.WriteString(")")
	return sb.String()
}
func (k *Keyboard) Type() string         { return "keyboard" }
func (k *Keyboard) Freeze()              {}
func (k *Keyboard) Truth() starlark.Bool { return len(k.km.Rows) > 0 }
func (k *Keyboard) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: keyboard")
}

func (k *Keyboard) Attr(name string) (starlark.Value, error) {
	switch name {
	case "rows":
		return k.rows(), nil
	case "to_dict":
		return starlark.NewBuiltin("to_dict", k.toDict).BindReceiver(k), nil
	}
	return nil, nil
}

func (k *Keyboard) AttrNames() []string { return []string{"rows", "to_dict"} }

func (k *Keyboard) rows() *starlark.List {
	rows := make([]starlark.Value, 0, len(k.km.Rows))
	for _, row := range k.km.Rows {
		buttons := make([]starlark.Value, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, &Button{b: b})
		}
		rows = append(rows, starlark.NewList(buttons))
	}
	return starlark.NewList(rows)
}

func (k *Keyboard) toDict(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	data, err := k.km.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return starconv.Unmarshal(data)
}

func makeButton(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		label                          string
		callbackData, url, inlineQuery starlark.Value = starlark.None, starlark.None, starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"label", &label,
		"callback_data?", &callbackData,
		"url?", &url,
		"switch_inline_query?", &inlineQuery,
	); err != nil {
		return nil, err
	}

	var (
		action update.Action
		count  int
	)
	for _, a := range []struct {
		kind update.ActionKind
		v    starlark.Value
	}{
		{update.ActionCallbackData, callbackData},
		{update.ActionURL, url},
		{update.ActionSwitchInlineQuery, inlineQuery},
	} {
		if a.v == starlark.None {
			continue
		}
		s, ok := starlark.AsString(a.v)
		if !ok {
			return nil, fmt.Errorf("%s: %s must be a string, got %s", b.Name(), a.kind, a.v.Type())
		}
		action = update.Action{Kind: a.kind, Value: s}
		count++
	}
	if count != 1 {
		return nil, fmt.Errorf("%s: %q must have exactly one of callback_data, url or switch_inline_query", b.Name(), label)
	}

	btn, err := update.NewButton(label, action.Kind, action.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &Button{b: btn}, nil
}

func makeKeyboard(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	km, err := parse(starlark.NewList(args))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &Keyboard{km: km}, nil
}

// FromValue converts a Starlark value accepted as reply markup into a
// keyboard. It returns nil for None.
func FromValue(v starlark.Value) (*update.KeyboardMarkup, error) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case *Keyboard:
		km := v.km
		return &km, nil
	}
	km, err := parse(v)
	if err != nil {
		return nil, err
	}
	return &km, nil
}

func parse(v starlark.Value) (update.KeyboardMarkup, error) {
	raw, err := toRaw(v)
	if err != nil {
		return update.KeyboardMarkup{}, err
	}
	return update.ParseMarkup(raw)
}

// toRaw is like starconv.ToGo, but understands buttons.
func toRaw(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case *Button:
		return v.raw(), nil
	case *Keyboard:
		return toRaw(v.rows())
	case *starlark.List, starlark.Tuple:
		seq := v.(starlark.Indexable)
		list := make([]any, 0, seq.Len())
		for i := range seq.Len() {
			item, err := toRaw(seq.Index(i))
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%w: dict key %s", update.ErrInvalidMarkup, item[0].Type())
			}
			val, err := toRaw(item[1])
			if err != nil {
				return nil, err
			}
			m[string(k)] = val
		}
		return m, nil
	}
	return starconv.ToGo(v)
}
