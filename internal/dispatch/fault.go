// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"go.astrophena.name/starhost/internal/api/telegram"
	"go.astrophena.name/starhost/internal/registry"
	"go.astrophena.name/starhost/internal/update"
)

const faultPrefix = "❌ Bot script error: "

func scrub(bot registry.Bot, s string) string {
	if bot.Token == "" {
		return s
	}
	return strings.ReplaceAll(s, bot.Token, "[EXPUNGED]")
}

// reportFault tells the user that the script failed. It uses its own Telegram
// client, so the report does not depend on anything the script did. Failures
// are logged and otherwise ignored.
func (d *Dispatcher) reportFault(ctx context.Context, bot registry.Bot, ev update.Event, cause error, logger *slog.Logger) bool {
	tg := d.telegram(bot, logger)
	text := faultPrefix + scrub(bot, cause.Error())

	var res []byte
	switch ev.Kind {
	case update.KindMessage:
		res = tg.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: ev.Message.Chat.ID,
			Text:   text,
		})
	case update.KindCallback:
		res = tg.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
			CallbackQueryID: ev.CallbackQuery.ID,
			Text:            truncate(text, telegram.MaxCallbackAnswerLength),
			ShowAlert:       true,
		})
	default:
		return false
	}

	if res == nil {
		logger.Error("reporting an error failed", "err", scrub(bot, cause.Error()))
		return false
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
