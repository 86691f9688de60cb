package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("dispatch failed")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertSession(ctx, model.Session{ID: "s1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetSessionForUpdate(ctx, "s1")
		return err
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestInsertAppointmentConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.AddAppointment(model.Appointment{
		ID: "a1", SessionID: "s1", MasterID: "m1",
		StartAt: base, EndAt: base.Add(30 * time.Minute), Status: model.StatusConfirmed,
	})

	insert := func(a model.Appointment) error {
		return s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertAppointment(ctx, a)
		})
	}

	err := insert(model.Appointment{ID: "a2", SessionID: "s2", MasterID: "m1",
		StartAt: base.Add(15 * time.Minute), EndAt: base.Add(45 * time.Minute), Status: model.StatusPending})
	assert.ErrorIs(t, err, errs.ErrSlotUnavailable)

	err = insert(model.Appointment{ID: "a3", SessionID: "s1", MasterID: "m2",
		StartAt: base, EndAt: base.Add(30 * time.Minute), Status: model.StatusPending})
	assert.ErrorIs(t, err, errs.ErrSessionConsumed)

	err = insert(model.Appointment{ID: "a4", SessionID: "s4", MasterID: "m1",
		StartAt: base.Add(30 * time.Minute), EndAt: base.Add(time.Hour), Status: model.StatusPending})
	assert.NoError(t, err, "adjacent ranges do not collide")

	err = insert(model.Appointment{ID: "a5", SessionID: "s5", MasterID: "m1",
		StartAt: base, EndAt: base.Add(30 * time.Minute), Status: model.StatusCanceled})
	assert.NoError(t, err, "canceled appointments never block")

	assert.Len(t, s.Appointments(), 3)
}

func TestDeleteExpiredKeepsConsumed(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	appt := "a1"

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertSession(ctx, model.Session{ID: "old", ExpiresAt: now.Add(-2 * time.Hour)}))
		require.NoError(t, tx.InsertSession(ctx, model.Session{ID: "done", ExpiresAt: now.Add(-2 * time.Hour), LinkedAppointmentID: &appt}))
		require.NoError(t, tx.InsertSession(ctx, model.Session{ID: "live", ExpiresAt: now.Add(time.Hour)}))
		n, err := tx.DeleteExpiredSessions(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return nil
	}))
}

func TestFindCreatedTelegramSession(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	chat := int64(42)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		older := model.Session{ID: "older", Channel: model.ChannelTelegram, TelegramChatID: &chat,
			MaxAttempts: 3, CreatedAt: now.Add(-2 * time.Minute), ExpiresAt: now.Add(time.Minute)}
		newer := older
		newer.ID, newer.CreatedAt = "newer", now.Add(-time.Minute)
		require.NoError(t, tx.InsertSession(ctx, older))
		require.NoError(t, tx.InsertSession(ctx, newer))

		got, err := tx.FindCreatedTelegramSession(ctx, chat, now)
		require.NoError(t, err)
		assert.Equal(t, "newer", got.ID)

		_, err = tx.FindCreatedTelegramSession(ctx, 7, now)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	}))
}
