// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram provides a minimal client for the Telegram Bot API that
// covers the actions available to bot scripts.
//
// Typed methods never return errors: a failed call is logged and yields a nil
// result. Use [Client.Call] when the caller needs to observe the failure.
package telegram

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/starhost/internal/request"
	"go.astrophena.name/starhost/internal/update"
)

// DefaultAPIURL is the base URL of the Telegram Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// DefaultTimeout bounds a single Bot API call.
const DefaultTimeout = 10 * time.Second

// Client is a Telegram Bot API client bound to a single bot token.
type Client struct {
	// Token is the bot token.
	Token string
	// APIURL overrides DefaultAPIURL.
	APIURL string
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages. The token is always scrubbed.
	Scrubber *strings.Replacer
	// Logger receives failed calls. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Timeout bounds every call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// APIError is returned by [Client.Call] when the Bot API rejects a request.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

type response struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) scrubber() *strings.Replacer {
	if c.Scrubber != nil {
		return c.Scrubber
	}
	return strings.NewReplacer(c.Token, "[EXPUNGED]")
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Call invokes a Bot API method with args marshaled as JSON and returns the
// raw response envelope: {"ok": true, "result": ...}.
func (c *Client) Call(ctx context.Context, method string, args any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(c.Timeout, DefaultTimeout))
	defer cancel()

	raw, err := request.Make[json.RawMessage](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        cmp.Or(c.APIURL, DefaultAPIURL) + "/bot" + c.Token + "/" + method,
		Body:       args,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.scrubber(),
	})
	if err != nil {
		var se *request.StatusError
		if errors.As(err, &se) {
			var resp response
			if json.Unmarshal(se.Body, &resp) == nil && resp.Description != "" {
				return nil, &APIError{Method: method, Code: se.StatusCode, Description: resp.Description}
			}
		}
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("telegram: %s: decoding response: %w", method, err)
	}
	if !resp.OK {
		return nil, &APIError{Method: method, Code: resp.ErrorCode, Description: resp.Description}
	}
	return raw, nil
}

func (c *Client) invoke(ctx context.Context, method string, args any) json.RawMessage {
	raw, err := c.Call(ctx, method, args)
	if err != nil {
		c.logger().Warn("telegram call failed", "method", method, "err", err)
		return nil
	}
	return raw
}

func telegramMarkup(km *update.KeyboardMarkup) *update.InlineKeyboardMarkup {
	if km == nil {
		return nil
	}
	return km.Telegram()
}

// SendMessageParams are parameters of [Client.SendMessage].
type SendMessageParams struct {
	ChatID      int64                  `json:"chat_id"`
	Text        string                 `json:"text"`
	ParseMode   string                 `json:"parse_mode,omitempty"`
	ReplyMarkup *update.KeyboardMarkup `json:"-"`
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) json.RawMessage {
	return c.invoke(ctx, "sendMessage", struct {
		SendMessageParams
		ReplyMarkup *update.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{p, telegramMarkup(p.ReplyMarkup)})
}

// EditMessageTextParams are parameters of [Client.EditMessageText].
type EditMessageTextParams struct {
	ChatID      int64                  `json:"chat_id"`
	MessageID   int64                  `json:"message_id"`
	Text        string                 `json:"text"`
	ParseMode   string                 `json:"parse_mode,omitempty"`
	ReplyMarkup *update.KeyboardMarkup `json:"-"`
}

// EditMessageText edits the text of a message.
func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) json.RawMessage {
	return c.invoke(ctx, "editMessageText", struct {
		EditMessageTextParams
		ReplyMarkup *update.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{p, telegramMarkup(p.ReplyMarkup)})
}

// EditMessageReplyMarkupParams are parameters of [Client.EditMessageReplyMarkup].
type EditMessageReplyMarkupParams struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
	// ReplyMarkup replaces the keyboard. A nil ReplyMarkup removes it.
	ReplyMarkup *update.KeyboardMarkup `json:"-"`
}

// EditMessageReplyMarkup replaces only the inline keyboard of a message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, p EditMessageReplyMarkupParams) json.RawMessage {
	return c.invoke(ctx, "editMessageReplyMarkup", struct {
		EditMessageReplyMarkupParams
		ReplyMarkup *update.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{p, telegramMarkup(p.ReplyMarkup)})
}

// AnswerCallbackQueryParams are parameters of [Client.AnswerCallbackQuery].
type AnswerCallbackQueryParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
	URL             string `json:"url,omitempty"`
}

// MaxCallbackAnswerLength is the maximum length of a callback query answer
// accepted by Telegram, in characters.
const MaxCallbackAnswerLength = 200

// AnswerCallbackQuery answers a callback query, optionally showing an alert
// or redirecting the user to URL.
func (c *Client) AnswerCallbackQuery(ctx context.Context, p AnswerCallbackQueryParams) json.RawMessage {
	return c.invoke(ctx, "answerCallbackQuery", p)
}

// MediaKind is a kind of media that can be sent with [Client.SendMedia].
type MediaKind string

// Supported media kinds.
const (
	Photo    MediaKind = "photo"
	Document MediaKind = "document"
	Video    MediaKind = "video"
	Audio    MediaKind = "audio"
)

func (k MediaKind) method() (string, bool) {
	switch k {
	case Photo:
		return "sendPhoto", true
	case Document:
		return "sendDocument", true
	case Video:
		return "sendVideo", true
	case Audio:
		return "sendAudio", true
	}
	return "", false
}

// SendMediaParams are parameters of [Client.SendMedia].
type SendMediaParams struct {
	ChatID int64
	// Media is a file identifier or an HTTP URL of the media.
	Media       string
	Caption     string
	ParseMode   string
	ReplyMarkup *update.KeyboardMarkup
}

// SendMedia sends a photo, document, video or audio file.
func (c *Client) SendMedia(ctx context.Context, kind MediaKind, p SendMediaParams) json.RawMessage {
	method, ok := kind.method()
	if !ok {
		c.logger().Warn("telegram call failed", "err", fmt.Errorf("unsupported media kind %q", kind))
		return nil
	}
	args := map[string]any{
		"chat_id":    p.ChatID,
		string(kind): p.Media,
	}
	if p.Caption != "" {
		args["caption"] = p.Caption
	}
	if p.ParseMode != "" {
		args["parse_mode"] = p.ParseMode
	}
	if km := telegramMarkup(p.ReplyMarkup); km != nil {
		args["reply_markup"] = km
	}
	return c.invoke(ctx, method, args)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) json.RawMessage {
	return c.invoke(ctx, "deleteMessage", map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	})
}

// ForwardMessageParams are parameters of [Client.ForwardMessage].
type ForwardMessageParams struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id"`
	MessageID  int64 `json:"message_id"`
}

// ForwardMessage forwards a message from one chat to another.
func (c *Client) ForwardMessage(ctx context.Context, p ForwardMessageParams) json.RawMessage {
	return c.invoke(ctx, "forwardMessage", p)
}

// SendChatAction shows a chat action such as "typing" to the users of a chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) json.RawMessage {
	return c.invoke(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
}
