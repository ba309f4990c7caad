// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sandbox

import (
	"strings"
	"sync"

	"go.astrophena.name/starhost/internal/starlark/lib/bot"
	"go.astrophena.name/starhost/internal/starlark/lib/httplib"
	"go.astrophena.name/starhost/internal/starlark/lib/keyboard"
	"go.astrophena.name/starhost/internal/starlark/lib/storage"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Environment is a collection of documented members of the Starlark environment.
type Environment []Member

// Member defines a documented Starlark environment member.
type Member struct {
	// Name is the name of the member.
	Name string
	// Doc is the documentation string for the member.
	Doc string
	// Value is the Starlark value. If Members is not nil, this should be nil,
	// as the value will be a module constructed from the members.
	Value starlark.Value
	// Members is a list of sub-members, used if this member is a module.
	Members []Member
}

// StringDict converts the Environment into a [starlark.StringDict] that can be
// used as a global environment for a Starlark interpreter.
func (d Environment) StringDict() starlark.StringDict {
	dict := make(starlark.StringDict)
	for _, m := range d {
		var val starlark.Value
		if len(m.Members) > 0 {
			val = &starlarkstruct.Module{
				Name:    m.Name,
				Members: Environment(m.Members).StringDict(),
			}
		} else {
			val = m.Value
		}
		dict[m.Name] = val
	}
	return dict
}

// Markdown generates a Markdown documentation string for the Starlark environment.
func (d Environment) Markdown() string {
	var b strings.Builder
	b.WriteString("# Starlark Environment\n\n")
	b.WriteString("These built-in functions and modules are available to bot scripts ")
	b.WriteString("in addition to the Starlark universe.\n\n")
	d.render(&b, 2, "")
	return strings.TrimSpace(b.String()) + "\n"
}

func (d Environment) render(b *strings.Builder, level int, prefix string) {
	for _, m := range d {
		b.WriteString(strings.Repeat("#", level))
		b.WriteString(" `")
		b.WriteString(prefix + m.Name)

		if _, ok := m.Value.(*starlark.Builtin); ok {
			b.WriteString("()")
		}
		b.WriteString("`\n\n")

		b.WriteString(strings.TrimSpace(m.Doc))
		b.WriteString("\n\n")

		if len(m.Members) > 0 {
			Environment(m.Members).render(b, level+1, prefix+m.Name+".")
		}
	}
}

// Documentation returns the Markdown documentation of the environment bot
// scripts run in.
var Documentation = sync.OnceValue(func() string {
	return environment(Invocation{}).Markdown()
})

var predeclared = sync.OnceValue(func() map[string]bool {
	names := make(map[string]bool)
	for _, m := range environment(Invocation{}) {
		names[m.Name] = true
	}
	return names
})

func isPredeclared(name string) bool { return predeclared()[name] }

func environment(inv Invocation) Environment {
	kb := keyboard.Builtins()
	return Environment{
		{
			Name:  "bot",
			Doc:   bot.Documentation(),
			Value: bot.Module(inv.Telegram),
		},
		{
			Name:  "button",
			Doc:   "Creates an inline keyboard button. See keyboard.",
			Value: kb["button"],
		},
		{
			Name:  "callback_query",
			Doc:   callbackQueryDoc,
			Value: CallbackQueryValue(inv.Event.CallbackQuery),
		},
		{
			Name: "config",
			Doc:  "A module containing configuration information about the bot.",
			Members: []Member{
				{
					Name:  "bot_id",
					Doc:   "The identifier of the bot in the registry.",
					Value: starlark.String(inv.BotID),
				},
				{
					Name:  "bot_username",
					Doc:   "The username of the bot.",
					Value: starlark.String(inv.BotUsername),
				},
			},
		},
		{
			Name:  "halt",
			Doc:   "Stops the script. Actions already performed stand and no error is reported.",
			Value: starlark.NewBuiltin("halt", halt),
		},
		{
			Name:  "http",
			Doc:   httplib.Documentation(),
			Value: httplib.Module(inv.HTTP),
		},
		{
			Name:  "json",
			Doc:   "A module for encoding and decoding JSON. See https://pkg.go.dev/go.starlark.net/lib/json.",
			Value: starlarkjson.Module,
		},
		{
			Name:  "keyboard",
			Doc:   keyboard.Documentation(),
			Value: kb["keyboard"],
		},
		{
			Name:  "math",
			Doc:   "A module for mathematical functions. See https://pkg.go.dev/go.starlark.net/lib/math.",
			Value: starlarkmath.Module,
		},
		{
			Name:  "message",
			Doc:   messageDoc,
			Value: MessageValue(inv.Event.Message),
		},
		{
			Name:  "storage",
			Doc:   storage.Documentation(),
			Value: storage.Module(inv.Storage, inv.Logger),
		},
		{
			Name:  "struct",
			Doc:   "Instantiates an immutable struct from the specified keyword arguments.",
			Value: starlark.NewBuiltin("struct", starlarkstruct.Make),
		},
		{
			Name:  "time",
			Doc:   "A module for time-related functions. See https://pkg.go.dev/go.starlark.net/lib/time#Module.",
			Value: starlarktime.Module,
		},
	}
}

const messageDoc = `
The message that triggered the script, or None for other events.

Fields: message_id, date (Unix time), text, caption, chat (id, type,
username, first_name, last_name) and from_user (id, username, first_name,
last_name, is_bot). photo is a tuple with the file ID of every available
size, smallest first, or None. The media fields document, video, audio, voice
and sticker hold a file ID or None.

If the script defines on_message(message), it is called after the top-level
code. Otherwise, if it defines handle_message(text, message), that is called.
A script defining neither echoes the text back.
`

const callbackQueryDoc = `
The callback query produced by an inline keyboard button press, or None for
other events.

Fields: id, data, chat_instance, from_user and message. message is None when
the original message is not available.
`
