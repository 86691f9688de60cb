package model

import "time"

type Master struct {
	ID             string
	Name           string
	Active         bool
	TelegramChatID *int64
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// TelegramContact links a Telegram chat to the phone number its owner shared with the bot.
type TelegramContact struct {
	ChatID    int64
	Phone     string
	UpdatedAt time.Time
}
