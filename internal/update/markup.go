// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package update

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionKind is the kind of action performed by an inline keyboard button.
type ActionKind string

// Supported button actions.
const (
	ActionCallbackData      ActionKind = "callback_data"
	ActionURL               ActionKind = "url"
	ActionSwitchInlineQuery ActionKind = "switch_inline_query"
)

var actionKinds = []ActionKind{ActionCallbackData, ActionURL, ActionSwitchInlineQuery}

// ErrInvalidMarkup is returned when a keyboard or one of its buttons is
// malformed.
var ErrInvalidMarkup = errors.New("invalid keyboard markup")

// Button is an inline keyboard button. It carries exactly one action.
type Button struct {
	Label  string
	Action Action
}

// Action is a single button action.
type Action struct {
	Kind  ActionKind
	Value string
}

// NewButton returns a button with the given label and action, validating it.
func NewButton(label string, kind ActionKind, value string) (Button, error) {
	b := Button{Label: label, Action: Action{Kind: kind, Value: value}}
	return b, b.validate()
}

func (b Button) validate() error {
	if b.Label == "" {
		return fmt.Errorf("%w: button without label", ErrInvalidMarkup)
	}
	switch b.Action.Kind {
	case ActionCallbackData:
		if n := len(b.Action.Value); n == 0 || n > 64 {
			return fmt.Errorf("%w: button %q: callback data must be 1-64 bytes, got %d", ErrInvalidMarkup, b.Label, n)
		}
	case ActionURL:
		if b.Action.Value == "" {
			return fmt.Errorf("%w: button %q: empty URL", ErrInvalidMarkup, b.Label)
		}
	case ActionSwitchInlineQuery:
		// Empty query is allowed and means "switch with an empty query".
	default:
		return fmt.Errorf("%w: button %q: unknown action %q", ErrInvalidMarkup, b.Label, b.Action.Kind)
	}
	return nil
}

// KeyboardMarkup is an inline keyboard: ordered rows of ordered buttons.
type KeyboardMarkup struct {
	Rows [][]Button
}

// Validate reports whether every button of k is well formed.
func (k KeyboardMarkup) Validate() error {
	for _, row := range k.Rows {
		for _, b := range row {
			if err := b.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

type canonicalButton struct {
	Label  string            `json:"label"`
	Action map[string]string `json:"action"`
}

type canonicalMarkup struct {
	Rows [][]canonicalButton `json:"rows"`
}

// MarshalJSON implements [json.Marshaler]. The canonical form is
//
//	{"rows": [[{"label": "...", "action": {"callback_data": "..."}}]]}
func (k KeyboardMarkup) MarshalJSON() ([]byte, error) {
	cm := canonicalMarkup{Rows: make([][]canonicalButton, 0, len(k.Rows))}
	for _, row := range k.Rows {
		cr := make([]canonicalButton, 0, len(row))
		for _, b := range row {
			cr = append(cr, canonicalButton{
				Label:  b.Label,
				Action: map[string]string{string(b.Action.Kind): b.Action.Value},
			})
		}
		cm.Rows = append(cm.Rows, cr)
	}
	return json.Marshal(cm)
}

// UnmarshalJSON implements [json.Unmarshaler]. It accepts every form
// understood by [ParseMarkup].
func (k *KeyboardMarkup) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m, err := ParseMarkup(raw)
	if err != nil {
		return err
	}
	*k = m
	return nil
}

// InlineKeyboardMarkup is the Telegram Bot API representation of an inline
// keyboard.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is the Telegram Bot API representation of an inline
// keyboard button.
type InlineKeyboardButton struct {
	Text              string  `json:"text"`
	CallbackData      string  `json:"callback_data,omitempty"`
	URL               string  `json:"url,omitempty"`
	SwitchInlineQuery *string `json:"switch_inline_query,omitempty"`
}

// Telegram converts k into the shape expected by the Telegram Bot API.
func (k KeyboardMarkup) Telegram() *InlineKeyboardMarkup {
	ikm := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(k.Rows))}
	for _, row := range k.Rows {
		tr := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			tb := InlineKeyboardButton{Text: b.Label}
			switch b.Action.Kind {
			case ActionCallbackData:
				tb.CallbackData = b.Action.Value
			case ActionURL:
				tb.URL = b.Action.Value
			case ActionSwitchInlineQuery:
				q := b.Action.Value
				tb.SwitchInlineQuery = &q
			}
			tr = append(tr, tb)
		}
		ikm.InlineKeyboard = append(ikm.InlineKeyboard, tr)
	}
	return ikm
}

// ParseMarkup canonicalizes a raw keyboard, as produced by decoding JSON into
// an empty interface, into a KeyboardMarkup.
//
// Accepted shapes are the canonical object {"rows": [...]}, the Telegram
// object {"inline_keyboard": [...]} and a bare list of rows. A button is an
// object with a "label" (or "text") and either an "action" object or a
// top-level action key. Every button must carry exactly one action.
func ParseMarkup(raw any) (KeyboardMarkup, error) {
	var rows any
	switch v := raw.(type) {
	case map[string]any:
		r, ok := v["rows"]
		if !ok {
			r, ok = v["inline_keyboard"]
		}
		if !ok {
			return KeyboardMarkup{}, fmt.Errorf("%w: object must have rows or inline_keyboard", ErrInvalidMarkup)
		}
		rows = r
	case []any:
		rows = v
	default:
		return KeyboardMarkup{}, fmt.Errorf("%w: unexpected type %T", ErrInvalidMarkup, raw)
	}

	rawRows, ok := rows.([]any)
	if !ok {
		return KeyboardMarkup{}, fmt.Errorf("%w: rows must be a list", ErrInvalidMarkup)
	}

	km := KeyboardMarkup{Rows: make([][]Button, 0, len(rawRows))}
	for i, rr := range rawRows {
		rawButtons, ok := rr.([]any)
		if !ok {
			return KeyboardMarkup{}, fmt.Errorf("%w: row %d must be a list", ErrInvalidMarkup, i)
		}
		row := make([]Button, 0, len(rawButtons))
		for j, rb := range rawButtons {
			b, err := parseButton(rb)
			if err != nil {
				return KeyboardMarkup{}, fmt.Errorf("row %d, button %d: %w", i, j, err)
			}
			row = append(row, b)
		}
		km.Rows = append(km.Rows, row)
	}
	return km, nil
}

func parseButton(raw any) (Button, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Button{}, fmt.Errorf("%w: button must be an object, got %T", ErrInvalidMarkup, raw)
	}

	label, _ := m["label"].(string)
	if label == "" {
		label, _ = m["text"].(string)
	}

	actions := m
	if a, ok := m["action"]; ok {
		am, ok := a.(map[string]any)
		if !ok {
			return Button{}, fmt.Errorf("%w: button %q: action must be an object", ErrInvalidMarkup, label)
		}
		actions = am
	}

	var (
		found Action
		count int
	)
	for _, kind := range actionKinds {
		v, ok := actions[string(kind)]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Button{}, fmt.Errorf("%w: button %q: %s must be a string", ErrInvalidMarkup, label, kind)
		}
		found = Action{Kind: kind, Value: s}
		count++
	}
	if count != 1 {
		return Button{}, fmt.Errorf("%w: button %q must have exactly one action, got %d", ErrInvalidMarkup, label, count)
	}

	return NewButton(label, found.Kind, found.Value)
}
