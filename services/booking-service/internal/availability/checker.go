package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
)

// Query asks whether a master is free for [StartAt, EndAt). ExcludeAppointmentID, when
// set, is ignored during the overlap scan.
type Query struct {
	MasterID             string
	ServiceID            string
	StartAt              time.Time
	EndAt                time.Time
	ExcludeAppointmentID string
}

// Checker decides bookability against the blocking appointments of a master. It never
// writes.
type Checker struct {
	clockSkew time.Duration
	now       func() time.Time
}

func NewChecker(clockSkew time.Duration, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{clockSkew: clockSkew, now: now}
}

// IsBookable returns false when any PENDING or CONFIRMED appointment of the master
// overlaps the query range. Invalid ranges and starts in the past are InvalidInput; an
// unknown master or service is NotFound, distinct from "not bookable".
func (c *Checker) IsBookable(ctx context.Context, tx store.Tx, q Query) (bool, error) {
	if err := c.validate(q); err != nil {
		return false, err
	}
	master, err := tx.GetMaster(ctx, q.MasterID)
	if err != nil {
		return false, err
	}
	if !master.Active {
		return false, errs.NotFound("master")
	}
	if q.ServiceID != "" {
		if _, err := tx.GetService(ctx, q.ServiceID); err != nil {
			return false, err
		}
	}

	existing, err := tx.ListBlockingAppointments(ctx, q.MasterID, q.StartAt, q.EndAt)
	if err != nil {
		return false, fmt.Errorf("list appointments: %w", err)
	}
	candidate := Interval{Start: q.StartAt, End: q.EndAt}
	for _, a := range existing {
		if a.ID == q.ExcludeAppointmentID && q.ExcludeAppointmentID != "" {
			continue
		}
		if !a.Status.Blocking() {
			continue
		}
		if Overlaps(candidate, Interval{Start: a.StartAt, End: a.EndAt}) {
			return false, nil
		}
	}
	return true, nil
}

// Busy returns the blocking intervals of a master inside [from, to), for slot listings.
func (c *Checker) Busy(ctx context.Context, tx store.Tx, masterID string, from, to time.Time) ([]Interval, error) {
	existing, err := tx.ListBlockingAppointments(ctx, masterID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]Interval, 0, len(existing))
	for _, a := range existing {
		out = append(out, Interval{Start: a.StartAt, End: a.EndAt})
	}
	return out, nil
}

// FreeStarts lists the starts in [from, to), step apart, where the service fits without
// overlapping a blocking appointment of the master.
func (c *Checker) FreeStarts(ctx context.Context, tx store.Tx, masterID, serviceID string, from, to time.Time, step time.Duration) ([]time.Time, error) {
	master, err := tx.GetMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}
	if !master.Active {
		return nil, errs.NotFound("master")
	}
	svc, err := tx.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	busy, err := c.Busy(ctx, tx, masterID, from, to)
	if err != nil {
		return nil, err
	}
	return AvailableSlots(from, to, svc.Duration(), step, busy, c.now().Add(-c.clockSkew)), nil
}

func (c *Checker) validate(q Query) error {
	if q.MasterID == "" {
		return errs.InvalidInput("master id is required")
	}
	if q.StartAt.IsZero() || q.EndAt.IsZero() {
		return errs.InvalidInput("start and end are required")
	}
	if !q.EndAt.After(q.StartAt) {
		return errs.InvalidInput("end must be after start")
	}
	if q.StartAt.Before(c.now().Add(-c.clockSkew)) {
		return errs.InvalidInput("start is in the past")
	}
	return nil
}
