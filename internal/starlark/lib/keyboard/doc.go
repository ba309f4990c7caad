// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package keyboard contains Starlark builtins for building inline keyboards.

Inline keyboards are built from buttons. Each button has a label and exactly
one action:

	yes = button("Yes", callback_data = "vote_yes")
	site = button("Website", url = "https://example.com")
	share = button("Share", switch_inline_query = "")

The keyboard function takes rows of buttons, one row per argument:

	kb = keyboard([yes, button("No", callback_data = "vote_no")], [site])
	bot.send_message(chat_id, "Vote!", reply_markup = kb)

A keyboard has the rows attribute and the to_dict method, which returns the
canonical form {"rows": [[{"label": ..., "action": {...}}]]}.

Wherever a keyboard is accepted, a dict in the canonical form, a dict in the
Telegram form {"inline_keyboard": [[{"text": ..., "callback_data": ...}]]}
or a plain list of rows is accepted as well.
*/
package keyboard

import (
	_ "embed"

	"go.astrophena.name/starhost/internal/starlark/lib/internal"
)

//go:embed doc.go
var doc []byte

// Documentation returns the documentation of the keyboard builtins.
var Documentation = internal.Documentation(doc)
