// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sandbox

import (
	"go.astrophena.name/starhost/internal/update"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Constructors of the entity structs. They show up in the string form of the
// values, e.g. message(chat = chat(...), ...).
var (
	messageConstructor  = starlark.String("message")
	callbackConstructor = starlark.String("callback_query")
	chatConstructor     = starlark.String("chat")
	userConstructor     = starlark.String("user")
)

// MessageValue converts m into the immutable struct seen by scripts. A nil
// message becomes None.
func MessageValue(m *update.Message) starlark.Value {
	if m == nil {
		return starlark.None
	}
	var date int64
	if !m.Date.IsZero() {
		date = m.Date.Unix()
	}
	return starlarkstruct.FromStringDict(messageConstructor, starlark.StringDict{
		"message_id": starlark.MakeInt64(m.ID),
		"date":       starlark.MakeInt64(date),
		"text":       starlark.String(m.Text),
		"caption":    starlark.String(m.Caption),
		"chat":       chatValue(m.Chat),
		"from_user":  userValue(m.From),
		"photo":      photoSizes(m.Media.Photo),
		"document":   fileRef(m.Media.Document),
		"video":      fileRef(m.Media.Video),
		"audio":      fileRef(m.Media.Audio),
		"voice":      fileRef(m.Media.Voice),
		"sticker":    fileRef(m.Media.Sticker),
	})
}

// CallbackQueryValue converts cq into the immutable struct seen by scripts.
// A nil callback query becomes None.
func CallbackQueryValue(cq *update.CallbackQuery) starlark.Value {
	if cq == nil {
		return starlark.None
	}
	return starlarkstruct.FromStringDict(callbackConstructor, starlark.StringDict{
		"id":            starlark.String(cq.ID),
		"data":          starlark.String(cq.Data),
		"chat_instance": starlark.String(cq.ChatInstance),
		"from_user":     userValue(cq.From),
		"message":       MessageValue(cq.Message),
	})
}

func chatValue(c update.Chat) starlark.Value {
	return starlarkstruct.FromStringDict(chatConstructor, starlark.StringDict{
		"id":         starlark.MakeInt64(c.ID),
		"type":       starlark.String(c.Type),
		"username":   starlark.String(c.Username),
		"first_name": starlark.String(c.FirstName),
		"last_name":  starlark.String(c.LastName),
	})
}

func userValue(u update.User) starlark.Value {
	return starlarkstruct.FromStringDict(userConstructor, starlark.StringDict{
		"id":         starlark.MakeInt64(u.ID),
		"username":   starlark.String(u.Username),
		"first_name": starlark.String(u.FirstName),
		"last_name":  starlark.String(u.LastName),
		"is_bot":     starlark.Bool(u.IsBot),
	})
}

// photoSizes returns a tuple of file IDs, smallest size first, or None.
func photoSizes(ids []string) starlark.Value {
	if len(ids) == 0 {
		return starlark.None
	}
	sizes := make(starlark.Tuple, len(ids))
	for i, id := range ids {
		sizes[i] = starlark.String(id)
	}
	return sizes
}

func fileRef(id string) starlark.Value {
	if id == "" {
		return starlark.None
	}
	return starlark.String(id)
}
