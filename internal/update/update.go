// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package update converts raw Telegram webhook payloads into the fixed set of
// value types exposed to bot scripts.
//
// Adapters never fail on missing optional fields: absent strings are empty,
// absent numbers are zero and absent nested objects are nil.
package update

import (
	"encoding/json"
	"time"
)

// Kind classifies an inbound event.
type Kind int

const (
	// KindUnknown is an event that carries neither a message nor a callback
	// query. It is dropped without any outbound action.
	KindUnknown Kind = iota
	// KindMessage is an event carrying a message.
	KindMessage
	// KindCallback is an event carrying a callback query produced by an inline
	// keyboard button press.
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallback:
		return "callback_query"
	default:
		return "unknown"
	}
}

// Event is a classified inbound event. Exactly one of Message and
// CallbackQuery is set, according to Kind.
type Event struct {
	Kind          Kind
	Message       *Message
	CallbackQuery *CallbackQuery
	// Raw is the payload the event was parsed from.
	Raw json.RawMessage
}

// ChatID returns the chat the event originated from, if known.
func (e Event) ChatID() (int64, bool) {
	switch {
	case e.Message != nil:
		return e.Message.Chat.ID, true
	case e.CallbackQuery != nil && e.CallbackQuery.Message != nil:
		return e.CallbackQuery.Message.Chat.ID, true
	}
	return 0, false
}

// User is a Telegram user or bot.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// Chat is a Telegram chat.
type Chat struct {
	ID        int64
	Type      string
	Username  string
	FirstName string
	LastName  string
}

// Media holds references to the media attached to a message. Other than Photo,
// each field is the file identifier of the attachment, or empty if there is
// none. Content is never fetched.
type Media struct {
	// Photo lists the file identifiers of every available size of the photo,
	// smallest first.
	Photo    []string
	Document string
	Video    string
	Audio    string
	Voice    string
	Sticker  string
}

// Message is a Telegram message.
type Message struct {
	ID      int64
	Date    time.Time
	Text    string
	Caption string
	Chat    Chat
	From    User
	Media   Media
}

// CallbackQuery is an incoming callback query from an inline keyboard button.
type CallbackQuery struct {
	ID           string
	Data         string
	ChatInstance string
	From         User
	// Message is nil when the button was not attached to a message available
	// to the bot.
	Message *Message
}

// Parse classifies and adapts a raw webhook payload. Payloads that are not
// valid JSON objects, or that carry neither a message nor a callback query,
// produce an event of KindUnknown.
func Parse(raw []byte) Event {
	ev := Event{Kind: KindUnknown, Raw: json.RawMessage(raw)}

	var u wireUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return ev
	}

	switch {
	case u.Message != nil:
		ev.Kind = KindMessage
		ev.Message = u.Message.adapt()
	case u.CallbackQuery != nil:
		ev.Kind = KindCallback
		ev.CallbackQuery = u.CallbackQuery.adapt()
	}
	return ev
}

type wireUpdate struct {
	UpdateID      int64         `json:"update_id"`
	Message       *wireMessage  `json:"message"`
	CallbackQuery *wireCallback `json:"callback_query"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (u *wireUser) adapt() User {
	if u == nil {
		return User{}
	}
	return User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

type wireChat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type wireFile struct {
	FileID string `json:"file_id"`
}

type wireMessage struct {
	MessageID int64      `json:"message_id"`
	Date      int64      `json:"date"`
	Text      string     `json:"text"`
	Caption   string     `json:"caption"`
	Chat      *wireChat  `json:"chat"`
	From      *wireUser  `json:"from"`
	Photo     []wireFile `json:"photo"`
	Document  *wireFile  `json:"document"`
	Video     *wireFile  `json:"video"`
	Audio     *wireFile  `json:"audio"`
	Voice     *wireFile  `json:"voice"`
	Sticker   *wireFile  `json:"sticker"`
}

func (m *wireMessage) adapt() *Message {
	msg := &Message{
		ID:      m.MessageID,
		Text:    m.Text,
		Caption: m.Caption,
		From:    m.From.adapt(),
		Media: Media{
			Document: m.Document.id(),
			Video:    m.Video.id(),
			Audio:    m.Audio.id(),
			Voice:    m.Voice.id(),
			Sticker:  m.Sticker.id(),
		},
	}
	if m.Date != 0 {
		msg.Date = time.Unix(m.Date, 0).UTC()
	}
	if m.Chat != nil {
		msg.Chat = Chat{
			ID:        m.Chat.ID,
			Type:      m.Chat.Type,
			Username:  m.Chat.Username,
			FirstName: m.Chat.FirstName,
			LastName:  m.Chat.LastName,
		}
	}
	for _, size := range m.Photo {
		msg.Media.Photo = append(msg.Media.Photo, size.FileID)
	}
	return msg
}

func (f *wireFile) id() string {
	if f == nil {
		return ""
	}
	return f.FileID
}

type wireCallback struct {
	ID           string       `json:"id"`
	From         *wireUser    `json:"from"`
	Message      *wireMessage `json:"message"`
	ChatInstance string       `json:"chat_instance"`
	Data         string       `json:"data"`
}

func (c *wireCallback) adapt() *CallbackQuery {
	cq := &CallbackQuery{
		ID:           c.ID,
		Data:         c.Data,
		ChatInstance: c.ChatInstance,
		From:         c.From.adapt(),
	}
	// Inaccessible messages are delivered with date set to zero and without
	// content, treat them as absent.
	if c.Message != nil && c.Message.Date != 0 {
		cq.Message = c.Message.adapt()
	}
	return cq
}
