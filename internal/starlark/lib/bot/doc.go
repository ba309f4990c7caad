// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package bot contains a Starlark module that acts on behalf of the bot.

Every function takes the target chat and message identifiers explicitly. On
success a function returns the decoded Bot API response, a dict with the
"ok" and "result" keys. If the request fails, it returns None instead of
raising an error, so scripts can decide how to proceed:

	resp = bot.send_message(message.chat.id, "Hello!")
	if resp == None:
	    print("sending failed")

Wherever reply_markup is accepted, it may be a keyboard built with the
keyboard function, a dict or a list of rows.

# send_message

	bot.send_message(chat_id, text, parse_mode = None, reply_markup = None)

Sends a text message. Also available as bot.sendMessage and bot.send_text.

# edit_message_text

	bot.edit_message_text(chat_id, message_id, text, parse_mode = None, reply_markup = None)

Edits the text of a message.

# edit_message_reply_markup

	bot.edit_message_reply_markup(chat_id, message_id, reply_markup = None)

Replaces the inline keyboard of a message. Omitting reply_markup removes it.

# answer_callback_query

	bot.answer_callback_query(callback_query_id, text = None, show_alert = False, url = None)

Answers a callback query, optionally showing an alert or opening url.

# send_photo, send_document, send_video, send_audio

	bot.send_photo(chat_id, photo, caption = None, parse_mode = None, reply_markup = None)

Sends media identified by a file ID or an HTTP URL. The second argument is
named after the media kind. bot.sendPhoto and bot.sendDocument are aliases.

# delete_message

	bot.delete_message(chat_id, message_id)

# forward_message

	bot.forward_message(chat_id, from_chat_id, message_id)

# send_chat_action

	bot.send_chat_action(chat_id, action)

Shows an action such as "typing" to users of a chat.
*/
package bot

import (
	_ "embed"

	"go.astrophena.name/starhost/internal/starlark/lib/internal"
)

//go:embed doc.go
var doc []byte

// Documentation returns the documentation of the bot module.
var Documentation = internal.Documentation(doc)
