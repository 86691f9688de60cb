package model

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelTelegram Channel = "TELEGRAM"
	ChannelGoogle   Channel = "GOOGLE"
)

func ParseChannel(raw string) (Channel, bool) {
	switch c := Channel(strings.ToUpper(strings.TrimSpace(raw))); c {
	case ChannelSMS, ChannelTelegram, ChannelGoogle:
		return c, true
	default:
		return "", false
	}
}

// UsesCode reports whether the channel proves control by a typed code.
func (c Channel) UsesCode() bool {
	return c == ChannelSMS || c == ChannelTelegram
}

type State string

const (
	StateCreated     State = "CREATED"
	StatePendingCode State = "PENDING_CODE"
	StateVerified    State = "VERIFIED"
	StateLocked      State = "LOCKED"
	StateExpired     State = "EXPIRED"
	StateConsumed    State = "CONSUMED"
)

// Slot is the candidate booking range a session was opened for.
type Slot struct {
	ServiceID string
	MasterID  string
	StartAt   time.Time
	EndAt     time.Time
}

type Session struct {
	ID                  string
	Channel             Channel
	SubjectKey          string
	Slot                Slot
	CustomerName        string
	ContactPhone        string
	CodeHash            []byte
	AttemptCount        int
	MaxAttempts         int
	CreatedAt           time.Time
	ExpiresAt           time.Time
	ResendAvailableAt   time.Time
	DispatchedAt        *time.Time
	VerifiedAt          *time.Time
	LinkedAppointmentID *string
	TelegramChatID      *int64
}

// State derives the lifecycle state from the persisted timestamps. Precedence:
// consumed, expired, verified, locked, pending code, created.
func (s Session) State(now time.Time) State {
	switch {
	case s.LinkedAppointmentID != nil:
		return StateConsumed
	case now.After(s.ExpiresAt):
		return StateExpired
	case s.VerifiedAt != nil:
		return StateVerified
	case s.AttemptCount >= s.MaxAttempts:
		return StateLocked
	case s.DispatchedAt != nil:
		return StatePendingCode
	default:
		return StateCreated
	}
}

func (s Session) RemainingAttempts() int {
	if r := s.MaxAttempts - s.AttemptCount; r > 0 {
		return r
	}
	return 0
}
