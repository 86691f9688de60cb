package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers codes through the salon bot.
type TelegramSender struct {
	bot      BotAPI
	username string
}

func NewTelegramSender(bot BotAPI, botUsername string) *TelegramSender {
	return &TelegramSender{bot: bot, username: strings.TrimPrefix(strings.TrimSpace(botUsername), "@")}
}

func (t *TelegramSender) SendCode(ctx context.Context, chatID int64, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Your booking code: %s\nEnter it on the booking page to confirm.", code))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	err := await(ctx, func() error {
		_, err := t.bot.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// DeepLink opens the bot with /start <sessionID>. Session ids are UUIDs, which fit the
// 64-character start parameter limit.
func (t *TelegramSender) DeepLink(sessionID string) string {
	return "https://t.me/" + t.username + "?start=" + url.QueryEscape(sessionID)
}
