package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatePrecedence(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	dispatched := now.Add(-time.Minute)
	base := Session{MaxAttempts: 3, ExpiresAt: now.Add(5 * time.Minute)}

	assert.Equal(t, StateCreated, base.State(now))

	pending := base
	pending.DispatchedAt = &dispatched
	assert.Equal(t, StatePendingCode, pending.State(now))

	locked := pending
	locked.AttemptCount = 3
	assert.Equal(t, StateLocked, locked.State(now))
	assert.Equal(t, 0, locked.RemainingAttempts())

	verified := pending
	verified.VerifiedAt = &now
	assert.Equal(t, StateVerified, verified.State(now))
	assert.Equal(t, StateExpired, verified.State(now.Add(time.Hour)), "expiry beats verified")

	apptID := "appt-1"
	consumed := verified
	consumed.LinkedAppointmentID = &apptID
	assert.Equal(t, StateConsumed, consumed.State(now.Add(time.Hour)), "consumed beats expired")
}

func TestParseChannel(t *testing.T) {
	c, ok := ParseChannel(" telegram ")
	assert.True(t, ok)
	assert.Equal(t, ChannelTelegram, c)
	assert.True(t, c.UsesCode())

	_, ok = ParseChannel("fax")
	assert.False(t, ok)
	assert.False(t, ChannelGoogle.UsesCode())
}

func TestBlockingStatuses(t *testing.T) {
	assert.True(t, StatusPending.Blocking())
	assert.True(t, StatusConfirmed.Blocking())
	assert.False(t, StatusCanceled.Blocking())
	assert.False(t, StatusDone.Blocking())
}
