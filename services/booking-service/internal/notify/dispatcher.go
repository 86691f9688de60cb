// Package notify tells the salon about new appointments. Delivery is best effort and runs
// outside the booking transaction; failures are logged and dropped.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type Notifier interface {
	Name() string
	Notify(ctx context.Context, appt model.Appointment) error
}

type Config struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type job struct {
	ctx  context.Context
	appt model.Appointment
}

// Dispatcher fans appointments out to notifiers on background workers. Dispatch never
// blocks: when the queue is full the notification is dropped.
type Dispatcher struct {
	logger    *slog.Logger
	notifiers []Notifier
	timeout   time.Duration
	queue     chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(logger *slog.Logger, cfg Config, notifiers ...Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		logger:    logger,
		notifiers: notifiers,
		timeout:   cfg.Timeout,
		queue:     make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, appt model.Appointment) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || len(d.notifiers) == 0 {
		return
	}
	select {
	case d.queue <- job{ctx: otelx.Detach(ctx), appt: appt}:
	default:
		d.logger.Warn("notification queue full; dropping", "appointment_id", appt.ID)
	}
}

// Close stops accepting work and waits for queued notifications until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		for _, n := range d.notifiers {
			d.deliver(j, n)
		}
	}
}

func (d *Dispatcher) deliver(j job, n Notifier) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("notifier panicked", "notifier", n.Name(), "panic", rec)
		}
	}()
	if err := n.Notify(ctx, j.appt); err != nil {
		d.logger.Error("notification failed", "notifier", n.Name(), "appointment_id", j.appt.ID, "err", err)
		return
	}
	d.logger.Debug("notification sent", "notifier", n.Name(), "appointment_id", j.appt.ID)
}
