package inbox

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/notification-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real PostgreSQL when TEST_DATABASE_URL is set.
func TestRecordDeduplicates(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, storage.Migrate(ctx, pool))

	repo := NewRepository(pool)
	eventID := uuid.NewString()

	fresh, err := repo.Record(ctx, eventID, "booking.appointment.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.Record(ctx, eventID, "booking.appointment.created.v1")
	require.NoError(t, err)
	assert.False(t, fresh, "a redelivered event is reported as seen")

	fresh, err = repo.Record(ctx, uuid.NewString(), "booking.appointment.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)
}
