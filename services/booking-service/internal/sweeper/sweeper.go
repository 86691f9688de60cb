// Package sweeper deletes verification sessions that expired without being consumed.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
)

type Sweeper struct {
	store    store.Store
	sessions *verification.Sessions
	logger   *slog.Logger
	running  atomic.Bool
}

func New(st store.Store, sessions *verification.Sessions, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: st, sessions: sessions, logger: logger}
}

// SweepOnce deletes sessions past expiry plus retention and returns how many went.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = s.sessions.SweepExpired(ctx, tx)
		return err
	})
	return n, err
}

// Run schedules SweepOnce on spec (standard cron syntax or descriptors like "@every 15m")
// until ctx ends. Overlapping runs are skipped.
func (s *Sweeper) Run(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if !s.running.CompareAndSwap(false, true) {
			return
		}
		defer s.running.Store(false)

		n, err := s.SweepOnce(ctx)
		if err != nil {
			s.logger.Error("session sweep failed", "err", err)
			return
		}
		if n > 0 {
			s.logger.Info("expired sessions swept", "deleted", n)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
