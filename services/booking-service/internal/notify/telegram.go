package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// BotAPI is the subset of *tgbotapi.BotAPI the notifiers use.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts new appointments into the operator chat.
type TelegramNotifier struct {
	bot    BotAPI
	chatID int64
	loc    *time.Location
}

// NewTelegramNotifier renders times in loc, the salon's time zone; nil means UTC.
func NewTelegramNotifier(bot BotAPI, operatorChatID int64, loc *time.Location) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{bot: bot, chatID: operatorChatID, loc: loc}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(ctx context.Context, appt model.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, t.render(appt))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *TelegramNotifier) render(appt model.Appointment) string {
	start, end := appt.StartAt.In(t.loc), appt.EndAt.In(t.loc)
	var b strings.Builder
	fmt.Fprintf(&b, "New booking\n%s, %s - %s\n", start.Format("Mon 02 Jan"), start.Format("15:04"), end.Format("15:04"))
	fmt.Fprintf(&b, "Client: %s, +%s\n", appt.CustomerName, appt.Phone)
	if appt.Email != nil {
		fmt.Fprintf(&b, "Email: %s\n", *appt.Email)
	}
	fmt.Fprintf(&b, "Master: %s, service: %s", appt.MasterID, appt.ServiceID)
	return b.String()
}
