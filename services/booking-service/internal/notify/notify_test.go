package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/salonbook/salonbook/libs/events"
	"github.com/salonbook/salonbook/libs/kafkax"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppointment() model.Appointment {
	email := "anna@example.com"
	start := time.Date(2026, 7, 2, 10, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:           "appt-1",
		SessionID:    "sess-1",
		MasterID:     "m1",
		ServiceID:    "cut",
		CustomerName: "Anna",
		Phone:        "491771234567",
		Email:        &email,
		StartAt:      start,
		EndAt:        start.Add(30 * time.Minute),
		Status:       model.StatusPending,
		CreatedAt:    start.Add(-24 * time.Hour),
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingNotifier struct {
	mu    sync.Mutex
	got   []string
	err   error
	block chan struct{}
}

func (c *countingNotifier) Name() string { return "counting" }

func (c *countingNotifier) Notify(ctx context.Context, appt model.Appointment) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, appt.ID)
	return c.err
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestDispatcherDeliversToEveryNotifier(t *testing.T) {
	failing := &countingNotifier{err: errors.New("smtp down")}
	ok := &countingNotifier{}
	d := NewDispatcher(discard(), Config{Workers: 1}, failing, ok)

	d.Dispatch(context.Background(), testAppointment())
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count(), "one failing notifier does not stop the others")
}

func TestDispatcherDoesNotBlockWhenFull(t *testing.T) {
	slow := &countingNotifier{block: make(chan struct{})}
	d := NewDispatcher(discard(), Config{QueueSize: 1, Workers: 1, Timeout: time.Second}, slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Dispatch(context.Background(), testAppointment())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked")
	}

	close(slow.block)
	require.NoError(t, d.Close(context.Background()))
	assert.LessOrEqual(t, slow.count(), 2)
}

func TestDispatcherSurvivesCanceledRequest(t *testing.T) {
	n := &countingNotifier{}
	d := NewDispatcher(discard(), Config{}, n)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, testAppointment())
	cancel()
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, n.count())

	d.Dispatch(context.Background(), testAppointment())
	assert.Equal(t, 1, n.count(), "dispatch after close is ignored")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafkaNotifier(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaNotifier(w).Notify(context.Background(), testAppointment()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, events.TopicAppointmentCreated, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	meta := kafkax.ExtractEventMeta(msg)
	assert.NotEmpty(t, meta.EventID)
	assert.Equal(t, events.TopicAppointmentCreated, meta.EventType)

	var evt events.AppointmentCreated
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	assert.Equal(t, "anna@example.com", evt.Email)
	assert.Equal(t, "sess-1", evt.SessionID)

	w.err = errors.New("leader not available")
	assert.Error(t, NewKafkaNotifier(w).Notify(context.Background(), testAppointment()))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	bot := &fakeBot{}
	berlin := time.FixedZone("CEST", 2*60*60)
	require.NoError(t, NewTelegramNotifier(bot, -100, berlin).Notify(context.Background(), testAppointment()))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-100), msg.ChatID)
	assert.Contains(t, msg.Text, "12:00 - 12:30")
	assert.Contains(t, msg.Text, "+491771234567")
	assert.Contains(t, msg.Text, "anna@example.com")
}
