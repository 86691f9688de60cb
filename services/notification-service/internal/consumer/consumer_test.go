package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/salonbook/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			<-ctx.Done()
			return kafka.Message{}, ctx.Err()
		}
		return m, nil
	}
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (i *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return false, i.err
	}
	if i.seen == nil {
		i.seen = map[string]bool{}
	}
	if i.seen[id] {
		return false, nil
	}
	i.seen[id] = true
	return true, nil
}

func msg(id string) kafka.Message {
	return kafka.Message{
		Topic:   "booking.appointment.created.v1",
		Headers: []kafka.Header{{Key: kafkax.HeaderEventID, Value: []byte(id)}},
	}
}

func TestRunDeduplicates(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- msg("e1")
	reader.msgs <- msg("e1")
	reader.msgs <- msg("e2")
	close(reader.msgs)

	var (
		mu      sync.Mutex
		handled []string
	)
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), &memInbox{}, reader, time.Millisecond,
		func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, kafkax.ExtractEventMeta(m).EventID)
			return errors.New("handler errors do not stop the loop")
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.True(t, reader.closed)
}

func TestInboxErrorSkipsHandler(t *testing.T) {
	called := false
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), &memInbox{err: errors.New("db down")}, &chanReader{}, 0,
		func(context.Context, kafka.Message) error {
			called = true
			return nil
		})
	c.process(context.Background(), msg("e1"))
	assert.False(t, called)
}
