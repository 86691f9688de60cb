package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real PostgreSQL when TEST_DATABASE_URL is set.
func openTestPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are idempotent")
	return pool
}

func TestInsertRecordsEachAttempt(t *testing.T) {
	pool := openTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	apptID := uuid.NewString()

	require.NoError(t, repo.Insert(ctx, Notification{
		AppointmentID: apptID,
		Channel:       "email",
		Recipient:     "front@salon.example",
		Provider:      "smtp",
		Payload:       map[string]string{"subject": "New booking"},
		Status:        StatusSent,
	}))
	require.NoError(t, repo.Insert(ctx, Notification{
		AppointmentID: apptID,
		Channel:       "email",
		Recipient:     "owner@salon.example",
		Provider:      "smtp",
		Status:        StatusFailed,
		Error:         "550 mailbox unavailable",
	}))

	rows, err := pool.Query(ctx, `
		SELECT recipient, status, error, payload->>'subject'
		FROM notifications WHERE appointment_id = $1 ORDER BY id
	`, apptID)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		recipient, status string
		errText, subject  *string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.recipient, &r.status, &r.errText, &r.subject))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "sent", got[0].status)
	assert.Nil(t, got[0].errText, "an empty error is stored as NULL")
	require.NotNil(t, got[0].subject)
	assert.Equal(t, "New booking", *got[0].subject)

	assert.Equal(t, "failed", got[1].status)
	require.NotNil(t, got[1].errText)
	assert.Equal(t, "550 mailbox unavailable", *got[1].errText)
}

func TestInsertRejectsUnknownStatus(t *testing.T) {
	pool := openTestPool(t)
	err := NewRepository(pool).Insert(context.Background(), Notification{
		AppointmentID: uuid.NewString(),
		Channel:       "email",
		Recipient:     "front@salon.example",
		Status:        Status("queued"),
	})
	require.Error(t, err)
	assert.Equal(t, "23514", db.SQLState(err))
}
