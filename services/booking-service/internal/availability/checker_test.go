package availability

import (
	"context"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ten = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*memstore.Store, *Checker) {
	t.Helper()
	s := memstore.New()
	s.AddMaster(model.Master{ID: "m1", Name: "Olga", Active: true})
	s.AddMaster(model.Master{ID: "gone", Name: "Retired", Active: false})
	s.AddService(model.Service{ID: "cut", Name: "Haircut", DurationMinutes: 30})
	s.AddAppointment(model.Appointment{
		ID: "a1", MasterID: "m1", ServiceID: "cut",
		StartAt: ten.Add(30 * time.Minute), EndAt: ten.Add(time.Hour), Status: model.StatusPending,
	})
	s.AddAppointment(model.Appointment{
		ID: "a2", MasterID: "m1", ServiceID: "cut",
		StartAt: ten.Add(2 * time.Hour), EndAt: ten.Add(150 * time.Minute), Status: model.StatusCanceled,
	})
	return s, NewChecker(time.Minute, func() time.Time { return ten.Add(-time.Hour) })
}

func check(t *testing.T, s *memstore.Store, c *Checker, q Query) (bool, error) {
	t.Helper()
	var ok bool
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		ok, err = c.IsBookable(ctx, tx, q)
		return err
	})
	return ok, err
}

func TestIsBookable(t *testing.T) {
	s, c := newFixture(t)

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"ends where existing starts", ten, ten.Add(30 * time.Minute), true},
		{"one minute into existing", ten, ten.Add(31 * time.Minute), false},
		{"inside existing", ten.Add(35 * time.Minute), ten.Add(50 * time.Minute), false},
		{"starts where existing ends", ten.Add(time.Hour), ten.Add(90 * time.Minute), true},
		{"over a canceled appointment", ten.Add(2 * time.Hour), ten.Add(150 * time.Minute), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := check(t, s, c, Query{MasterID: "m1", ServiceID: "cut", StartAt: tc.start, EndAt: tc.end})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestIsBookableExcludesAppointment(t *testing.T) {
	s, c := newFixture(t)
	ok, err := check(t, s, c, Query{MasterID: "m1", StartAt: ten.Add(30 * time.Minute), EndAt: ten.Add(time.Hour), ExcludeAppointmentID: "a1"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsBookableRejectsInvalidInput(t *testing.T) {
	s, c := newFixture(t)

	_, err := check(t, s, c, Query{MasterID: "m1", StartAt: ten, EndAt: ten})
	assert.ErrorIs(t, err, errs.ErrInvalidInput, "zero duration")

	_, err = check(t, s, c, Query{MasterID: "m1", StartAt: ten, EndAt: ten.Add(-time.Minute)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput, "negative duration")

	_, err = check(t, s, c, Query{MasterID: "m1", StartAt: ten.Add(-3 * time.Hour), EndAt: ten.Add(-2 * time.Hour)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput, "past start")

	ok, err := check(t, s, c, Query{MasterID: "m1", StartAt: ten.Add(-time.Hour - 30*time.Second), EndAt: ten.Add(-30 * time.Minute)})
	assert.NoError(t, err, "within clock skew")
	assert.True(t, ok)
}

func TestIsBookableUnknownIDs(t *testing.T) {
	s, c := newFixture(t)

	_, err := check(t, s, c, Query{MasterID: "nobody", StartAt: ten, EndAt: ten.Add(time.Minute)})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = check(t, s, c, Query{MasterID: "gone", StartAt: ten, EndAt: ten.Add(time.Minute)})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = check(t, s, c, Query{MasterID: "m1", ServiceID: "nails", StartAt: ten, EndAt: ten.Add(time.Minute)})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFreeStarts(t *testing.T) {
	s, c := newFixture(t)
	var got []time.Time
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = c.FreeStarts(ctx, tx, "m1", "cut", ten, ten.Add(3*time.Hour), 30*time.Minute)
		return err
	})
	require.NoError(t, err)
	want := []time.Time{
		ten,
		ten.Add(time.Hour),
		ten.Add(90 * time.Minute),
		ten.Add(2 * time.Hour),
		ten.Add(150 * time.Minute),
	}
	assert.Equal(t, want, got)

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := c.FreeStarts(ctx, tx, "gone", "cut", ten, ten.Add(time.Hour), 30*time.Minute)
		return err
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
