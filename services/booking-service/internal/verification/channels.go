package verification

import (
	"context"
	"time"
)

// SMSSender delivers a text message to an E.164 number without the leading plus.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// TelegramSender delivers codes through the bot and builds the deep link that binds a chat
// to a session.
type TelegramSender interface {
	SendCode(ctx context.Context, chatID int64, code string) error
	DeepLink(sessionID string) string
}

// Identity is what the identity provider asserts about the signed-in user.
type Identity struct {
	Email         string
	EmailVerified bool
	Name          string
}

type OAuthProvider interface {
	AuthURL(state, loginHint string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// StateCodec signs the OAuth state parameter so a callback can be tied to its session.
type StateCodec interface {
	Sign(sessionID string, expiresAt time.Time) (string, error)
	Parse(token string) (string, error)
}

// SendLimiter throttles code deliveries per subject across sessions.
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
