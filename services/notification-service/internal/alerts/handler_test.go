package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/salonbook/salonbook/libs/events"
	"github.com/salonbook/salonbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent    map[string]string
	failFor string
}

func (f *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	if to == f.failFor {
		return errors.New("mailbox unavailable")
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[to] = subject
	return nil
}

func (f *fakeSender) ProviderID() string { return "fake" }

type fakeRecorder struct {
	rows []storage.Notification
	err  error
}

func (f *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, n)
	return nil
}

func event(t *testing.T) kafka.Message {
	t.Helper()
	start := time.Date(2026, 7, 2, 10, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(events.AppointmentCreated{
		AppointmentID: "a1",
		MasterID:      "m1",
		ServiceID:     "cut",
		CustomerName:  "Anna",
		Phone:         "491771234567",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	return kafka.Message{Topic: events.TopicAppointmentCreated, Value: raw}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleSendsToEveryOperator(t *testing.T) {
	s := &fakeSender{failFor: "second@salon.example"}
	rec := &fakeRecorder{}
	h := New(s, rec, []string{"owner@salon.example", "second@salon.example"}, nil, discard())

	require.NoError(t, h.Handle(context.Background(), event(t)))
	assert.Equal(t, "New booking: Anna, 02.07 10:00", s.sent["owner@salon.example"])
	require.Len(t, rec.rows, 2)
	assert.Equal(t, storage.StatusSent, rec.rows[0].Status)
	assert.Equal(t, storage.StatusFailed, rec.rows[1].Status)
	assert.Equal(t, "mailbox unavailable", rec.rows[1].Error)
	assert.Equal(t, "fake", rec.rows[0].Provider)
}

func TestHandleSkipsMalformedEvents(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(&fakeSender{}, rec, []string{"owner@salon.example"}, nil, discard())
	require.NoError(t, h.Handle(context.Background(), kafka.Message{Value: []byte("{")}))
	require.NoError(t, h.Handle(context.Background(), kafka.Message{Value: []byte(`{"appointment_id":"a1"}`)}))
	assert.Empty(t, rec.rows)
}

func TestHandleReturnsStorageErrors(t *testing.T) {
	h := New(&fakeSender{}, &fakeRecorder{err: errors.New("db down")}, []string{"owner@salon.example"}, nil, discard())
	assert.ErrorContains(t, h.Handle(context.Background(), event(t)), "db down")
}

func TestRenderUsesSalonTimeZone(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	start := time.Date(2026, 7, 2, 10, 0, 0, 0, time.UTC)
	_, body := Render(events.AppointmentCreated{
		AppointmentID: "a1",
		CustomerName:  "Anna",
		Phone:         "491771234567",
		Email:         "anna@example.com",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
	}, loc)
	assert.Contains(t, body, "Time: 12:00 - 12:30")
	assert.Contains(t, body, "Phone: +491771234567")
	assert.Contains(t, body, "Email: anna@example.com")
}
