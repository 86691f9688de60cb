package booking

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/store/memstore"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	t0   = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	slot = time.Date(2026, 7, 2, 10, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu    sync.Mutex
	appts []model.Appointment
}

func (n *recordingNotifier) Dispatch(_ context.Context, a model.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.appts = append(n.appts, a)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.appts)
}

type capturingSMS struct {
	mu   sync.Mutex
	last string
}

func (c *capturingSMS) Send(_ context.Context, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = regexp.MustCompile(`\b[0-9]{6}\b`).FindString(body)
	return nil
}

type fixture struct {
	now      time.Time
	store    *memstore.Store
	sessions *verification.Sessions
	notifier *recordingNotifier
	m        *Materializer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: t0, store: memstore.New(), notifier: &recordingNotifier{}}
	clock := func() time.Time { return f.now }
	f.store.AddMaster(model.Master{ID: "m1", Name: "Olga", Active: true})
	f.store.AddService(model.Service{ID: "cut", Name: "Haircut", DurationMinutes: 30})

	p := verification.DefaultPolicy()
	p.CodeHashCost = bcrypt.MinCost
	f.sessions = verification.NewSessions(p, clock)
	f.m = NewMaterializer(f.store, f.sessions, availability.NewChecker(time.Minute, clock), f.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)), clock)
	return f
}

// verified opens a session for the slot and drives it to VERIFIED.
func (f *fixture) verified(t *testing.T, channel model.Channel, subject string) string {
	t.Helper()
	var id string
	err := f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		sess, _, err := f.sessions.Create(ctx, tx, verification.NewSession{
			Channel:      channel,
			SubjectKey:   subject,
			CustomerName: "Anna",
			ContactPhone: "491771234567",
			Slot:         model.Slot{ServiceID: "cut", MasterID: "m1", StartAt: slot, EndAt: slot.Add(30 * time.Minute)},
		})
		if err != nil {
			return err
		}
		if _, err := f.sessions.MarkDispatched(ctx, tx, sess); err != nil {
			return err
		}
		_, err = f.sessions.MarkVerified(ctx, tx, sess.ID)
		id = sess.ID
		return err
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) state(t *testing.T, id string) model.State {
	t.Helper()
	var sess model.Session
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) (err error) {
		sess, err = f.sessions.Get(ctx, tx, id)
		return err
	}))
	return sess.State(f.now)
}

func TestScenarioPhoneBookingEndToEnd(t *testing.T) {
	f := newFixture(t)
	sms := &capturingSMS{}
	svc := verification.NewService(verification.Deps{
		Store:    f.store,
		Sessions: f.sessions,
		Checker:  availability.NewChecker(time.Minute, func() time.Time { return f.now }),
		SMS:      sms,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return f.now },
	})
	ctx := context.Background()

	res, err := svc.Start(ctx, verification.StartRequest{
		Channel:      model.ChannelSMS,
		Phone:        "+49 177 1234567",
		CustomerName: "Anna",
		MasterID:     "m1",
		ServiceID:    "cut",
		StartAt:      slot,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatePendingCode, res.State)

	_, err = svc.Verify(ctx, res.Session.ID, sms.last)
	require.NoError(t, err)

	appt, err := f.m.Materialize(ctx, res.Session.ID, ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, model.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, "491771234567", appt.Phone)
	assert.Equal(t, slot, appt.StartAt)
	assert.Equal(t, slot.Add(30*time.Minute), appt.EndAt)
	assert.Equal(t, res.Session.ID, appt.SessionID)
	assert.Nil(t, appt.Email)

	_, err = f.m.Materialize(ctx, res.Session.ID, ProfileUpdate{})
	assert.ErrorIs(t, err, errs.ErrSessionConsumed)
	assert.Len(t, f.store.Appointments(), 1)
	assert.Equal(t, 1, f.notifier.count())
}

func TestSecondSessionForSameSlotLoses(t *testing.T) {
	f := newFixture(t)
	first := f.verified(t, model.ChannelSMS, "491771234567")
	second := f.verified(t, model.ChannelSMS, "491779999999")

	_, err := f.m.Materialize(context.Background(), first, ProfileUpdate{})
	require.NoError(t, err)

	_, err = f.m.Materialize(context.Background(), second, ProfileUpdate{})
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindSlotUnavailable, e.Kind)
	assert.Equal(t, errs.ActionPickNewSlot, e.Action)
	assert.Equal(t, model.StateVerified, f.state(t, second), "identity stays proven")
	assert.Equal(t, 1, f.notifier.count())
}

func TestConcurrentMaterializeSameSession(t *testing.T) {
	f := newFixture(t)
	id := f.verified(t, model.ChannelSMS, "491771234567")

	results := materializeConcurrently(f, []string{id, id, id, id, id, id, id, id})
	assert.Equal(t, 1, results[""])
	assert.Equal(t, 7, results[errs.KindSessionConsumed])
	assert.Len(t, f.store.Appointments(), 1)
}

func TestConcurrentMaterializeCompetingSessions(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = f.verified(t, model.ChannelSMS, "49177123456"+string(rune('0'+i)))
	}

	results := materializeConcurrently(f, ids)
	assert.Equal(t, 1, results[""])
	assert.Equal(t, 5, results[errs.KindSlotUnavailable])

	appts := f.store.Appointments()
	require.Len(t, appts, 1)
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			assert.False(t, availability.Overlaps(
				availability.Interval{Start: appts[i].StartAt, End: appts[i].EndAt},
				availability.Interval{Start: appts[j].StartAt, End: appts[j].EndAt},
			))
		}
	}
}

func materializeConcurrently(f *fixture, ids []string) map[errs.Kind]int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[errs.Kind]int{}
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.m.Materialize(context.Background(), id, ProfileUpdate{})
			mu.Lock()
			results[errs.KindOf(err)]++
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

func TestMaterializeRequiresVerifiedSession(t *testing.T) {
	f := newFixture(t)
	var pending string
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		sess, _, err := f.sessions.Create(ctx, tx, verification.NewSession{
			Channel:    model.ChannelSMS,
			SubjectKey: "491771234567",
			Slot:       model.Slot{ServiceID: "cut", MasterID: "m1", StartAt: slot, EndAt: slot.Add(30 * time.Minute)},
		})
		pending = sess.ID
		return err
	}))

	_, err := f.m.Materialize(context.Background(), pending, ProfileUpdate{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = f.m.Materialize(context.Background(), "missing", ProfileUpdate{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, f.notifier.count())
}

func TestMaterializeExpiredSession(t *testing.T) {
	f := newFixture(t)
	id := f.verified(t, model.ChannelSMS, "491771234567")
	f.now = f.now.Add(11 * time.Minute)

	_, err := f.m.Materialize(context.Background(), id, ProfileUpdate{})
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
	assert.Empty(t, f.store.Appointments())
}

func TestMaterializeAppliesProfileUpdate(t *testing.T) {
	f := newFixture(t)
	id := f.verified(t, model.ChannelSMS, "491771234567")
	email := " Anna@Example.com "
	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	appt, err := f.m.Materialize(context.Background(), id, ProfileUpdate{Email: &email, BirthDate: &birth})
	require.NoError(t, err)
	require.NotNil(t, appt.Email)
	assert.Equal(t, "anna@example.com", *appt.Email)
	assert.Equal(t, &birth, appt.BirthDate)
}

func TestMaterializeGoogleSessionDefaultsEmail(t *testing.T) {
	f := newFixture(t)
	id := f.verified(t, model.ChannelGoogle, "anna@example.com")

	appt, err := f.m.Materialize(context.Background(), id, ProfileUpdate{})
	require.NoError(t, err)
	require.NotNil(t, appt.Email)
	assert.Equal(t, "anna@example.com", *appt.Email)
	assert.Equal(t, "491771234567", appt.Phone)
}

func TestMaterializeRejectsInvalidEmail(t *testing.T) {
	f := newFixture(t)
	id := f.verified(t, model.ChannelSMS, "491771234567")
	bad := "not an email"

	_, err := f.m.Materialize(context.Background(), id, ProfileUpdate{Email: &bad})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, model.StateVerified, f.state(t, id))
}
