// Package telegrambot handles updates from the salon's Telegram bot: it binds chats to
// Telegram verification sessions and collects the phone number a chat shares.
package telegrambot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
)

const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Verifier interface {
	AttachTelegramChat(ctx context.Context, sessionID string, chatID int64) (bool, error)
	ShareTelegramContact(ctx context.Context, chatID int64, rawPhone string) (bool, error)
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UpdateSource is the long-polling side of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Handler struct {
	bot      Sender
	verifier Verifier
	logger   *slog.Logger
}

func NewHandler(bot Sender, verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{bot: bot, verifier: verifier, logger: logger}
}

func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	switch {
	case msg.IsCommand() && msg.Command() == "start":
		h.start(ctx, msg)
	case msg.Contact != nil:
		h.contact(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Open the booking page and choose Telegram to get your code.")
	}
}

func (h *Handler) start(ctx context.Context, msg *tgbotapi.Message) {
	sessionID := strings.TrimSpace(msg.CommandArguments())
	if sessionID == "" {
		h.reply(msg.Chat.ID, "Hello! Open the booking page and choose Telegram to get your code.")
		return
	}
	sent, err := h.verifier.AttachTelegramChat(ctx, sessionID, msg.Chat.ID)
	if err != nil {
		h.fail(msg.Chat.ID, err)
		return
	}
	if !sent {
		h.askContact(msg.Chat.ID)
	}
}

func (h *Handler) contact(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Contact.UserID != msg.From.ID {
		h.reply(msg.Chat.ID, "Please share your own phone number using the button below.")
		return
	}
	sent, err := h.verifier.ShareTelegramContact(ctx, msg.Chat.ID, msg.Contact.PhoneNumber)
	if err != nil {
		h.fail(msg.Chat.ID, err)
		return
	}
	if !sent {
		h.reply(msg.Chat.ID, "Thanks, your number is saved. Codes for your next bookings will arrive here.")
	}
}

func (h *Handler) askContact(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "To receive your booking code, please share your phone number.")
	keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButtonContact("Share phone number"),
	))
	keyboard.OneTimeKeyboard = true
	msg.ReplyMarkup = keyboard
	h.send(msg)
}

func (h *Handler) fail(chatID int64, err error) {
	switch errs.KindOf(err) {
	case errs.KindSessionExpired, errs.KindNotFound:
		h.reply(chatID, "This booking link is no longer valid. Please start again on the booking page.")
	case errs.KindSessionLocked:
		h.reply(chatID, "Too many wrong codes. Please start again on the booking page.")
	case errs.KindSessionConsumed:
		h.reply(chatID, "This booking is already confirmed.")
	case errs.KindInvalidInput:
		e, _ := errs.As(err)
		h.reply(chatID, e.Message)
	case errs.KindDispatchFailed:
		h.logger.Error("telegram code delivery failed", "chat_id", chatID, "err", err)
	default:
		h.logger.Error("telegram update failed", "chat_id", chatID, "err", err)
		h.reply(chatID, "Something went wrong. Please try again in a minute.")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.bot.Send(c); err != nil {
		h.logger.Warn("telegram reply failed", "err", err)
	}
}

// Poll consumes updates by long polling until ctx ends.
func (h *Handler) Poll(ctx context.Context, src UpdateSource) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	cfg.AllowedUpdates = []string{"message"}
	updates := src.GetUpdatesChan(cfg)
	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, u)
		}
	}
}

// Webhook serves updates pushed by Telegram. Requests must carry the secret token
// registered with setWebhook.
func (h *Handler) Webhook(secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var u tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), u)
		w.WriteHeader(http.StatusOK)
	})
}
