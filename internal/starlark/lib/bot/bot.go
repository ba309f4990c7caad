// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"encoding/json"
	"fmt"

	"go.astrophena.name/starhost/internal/api/telegram"
	"go.astrophena.name/starhost/internal/starlark/interpreter"
	"go.astrophena.name/starhost/internal/starlark/lib/keyboard"
	"go.astrophena.name/starhost/internal/starlark/starconv"
	"go.astrophena.name/starhost/internal/update"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module returns a Starlark module that performs Bot API actions with c.
func Module(c *telegram.Client) *starlarkstruct.Module {
	m := &module{c: c}
	members := starlark.StringDict{
		"send_message":              starlark.NewBuiltin("bot.send_message", m.sendMessage),
		"edit_message_text":         starlark.NewBuiltin("bot.edit_message_text", m.editMessageText),
		"edit_message_reply_markup": starlark.NewBuiltin("bot.edit_message_reply_markup", m.editMessageReplyMarkup),
		"answer_callback_query":     starlark.NewBuiltin("bot.answer_callback_query", m.answerCallbackQuery),
		"send_photo":                starlark.NewBuiltin("bot.send_photo", m.sendMedia(telegram.Photo)),
		"send_document":             starlark.NewBuiltin("bot.send_document", m.sendMedia(telegram.Document)),
		"send_video":                starlark.NewBuiltin("bot.send_video", m.sendMedia(telegram.Video)),
		"send_audio":                starlark.NewBuiltin("bot.send_audio", m.sendMedia(telegram.Audio)),
		"delete_message":            starlark.NewBuiltin("bot.delete_message", m.deleteMessage),
		"forward_message":           starlark.NewBuiltin("bot.forward_message", m.forwardMessage),
		"send_chat_action":          starlark.NewBuiltin("bot.send_chat_action", m.sendChatAction),
	}
	for alias, name := range aliases {
		members[alias] = members[name]
	}
	return &starlarkstruct.Module{Name: "bot", Members: members}
}

var aliases = map[string]string{
	"sendMessage":  "send_message",
	"send_text":    "send_message",
	"sendPhoto":    "send_photo",
	"sendDocument": "send_document",
}

type module struct {
	c *telegram.Client
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func result(raw json.RawMessage) (starlark.Value, error) {
	if raw == nil {
		return starlark.None, nil
	}
	v, err := starconv.Unmarshal(raw)
	if err != nil {
		return starlark.None, nil
	}
	return v, nil
}

// intID is an unpacker for chat and message identifiers.
type intID int64

func (x *intID) Unpack(v starlark.Value) error {
	i, ok := v.(starlark.Int)
	if !ok {
		return fmt.Errorf("got %s, want int", v.Type())
	}
	n, ok := i.Int64()
	if !ok {
		return fmt.Errorf("%s out of range", i)
	}
	*x = intID(n)
	return nil
}

// optString is an unpacker for optional string arguments that also accepts
// None.
type optString string

func (s *optString) Unpack(v starlark.Value) error {
	if v == starlark.None {
		*s = ""
		return nil
	}
	str, ok := starlark.AsString(v)
	if !ok {
		return fmt.Errorf("got %s, want string or None", v.Type())
	}
	*s = optString(str)
	return nil
}

func markup(b *starlark.Builtin, v starlark.Value) (*update.KeyboardMarkup, error) {
	km, err := keyboard.FromValue(v)
	if err != nil {
		return nil, fmt.Errorf("%s: reply_markup: %w", b.Name(), err)
	}
	return km, nil
}

func (m *module) sendMessage(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		chat      intID
		text      string
		parseMode optString
		rm        starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"chat_id", &chat,
		"text", &text,
		"parse_mode?", &parseMode,
		"reply_markup?", &rm,
	); err != nil {
		return nil, err
	}
	km, err := markup(b, rm)
	if err != nil {
		return nil, err
	}
	return result(m.c.SendMessage(interpreter.Context(thread), telegram.SendMessageParams{
		ChatID:      int64(chat),
		Text:        text,
		ParseMode:   string(parseMode),
		ReplyMarkup: km,
	}))
}

func (m *module) editMessageText(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		chat, msg intID
		text      string
		parseMode optString
		rm        starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"chat_id", &chat,
		"message_id", &msg,
		"text", &text,
		"parse_mode?", &parseMode,
		"reply_markup?", &rm,
	); err != nil {
		return nil, err
	}
	km, err := markup(b, rm)
	if err != nil {
		return nil, err
	}
	return result(m.c.EditMessageText(interpreter.Context(thread), telegram.EditMessageTextParams{
		ChatID:      int64(chat),
		MessageID:   int64(msg),
		Text:        text,
		ParseMode:   string(parseMode),
		ReplyMarkup: km,
	}))
}

func (m *module) editMessageReplyMarkup(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		chat, msg intID
		rm        starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"chat_id", &chat,
		"message_id", &msg,
		"reply_markup?", &rm,
	); err != nil {
		return nil, err
	}
	km, err := markup(b, rm)
	if err != nil {
		return nil, err
	}
	return result(m.c.EditMessageReplyMarkup(interpreter.Context(thread), telegram.EditMessageReplyMarkupParams{
		ChatID:      int64(chat),
		MessageID:   int64(msg),
		ReplyMarkup: km,
	}))
}

func (m *module) answerCallbackQuery(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		queryID   string
		text, url optString
		showAlert bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"callback_query_id", &queryID,
		"text?", &text,
		"show_alert?", &showAlert,
		"url?", &url,
	); err != nil {
		return nil, err
	}
	return result(m.c.AnswerCallbackQuery(interpreter.Context(thread), telegram.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            string(text),
		ShowAlert:       showAlert,
		URL:             string(url),
	}))
}

func (m *module) sendMedia(kind telegram.MediaKind) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			chat               intID
			media              string
			caption, parseMode optString
			rm                 starlark.Value = starlark.None
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"chat_id", &chat,
			string(kind), &media,
			"caption?", &caption,
			"parse_mode?", &parseMode,
			"reply_markup?", &rm,
		); err != nil {
			return nil, err
		}
		km, err := markup(b, rm)
		if err != nil {
			return nil, err
		}
		return result(m.c.SendMedia(interpreter.Context(thread), kind, telegram.SendMediaParams{
			ChatID:      int64(chat),
			Media:       media,
			Caption:     string(caption),
			ParseMode:   string(parseMode),
			ReplyMarkup: km,
		}))
	}
}

func (m *module) deleteMessage(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var chat, msg intID
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "chat_id", &chat, "message_id", &msg); err != nil {
		return nil, err
	}
	return result(m.c.DeleteMessage(interpreter.Context(thread), int64(chat), int64(msg)))
}

func (m *module) forwardMessage(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var chat, from, msg intID
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"chat_id", &chat,
		"from_chat_id", &from,
		"message_id", &msg,
	); err != nil {
		return nil, err
	}
	return result(m.c.ForwardMessage(interpreter.Context(thread), telegram.ForwardMessageParams{
		ChatID:     int64(chat),
		FromChatID: int64(from),
		MessageID:  int64(msg),
	}))
}

func (m *module) sendChatAction(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		chat   intID
		action string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "chat_id", &chat, "action", &action); err != nil {
		return nil, err
	}
	return result(m.c.SendChatAction(interpreter.Context(thread), int64(chat), action))
}
