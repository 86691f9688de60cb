// Package memstore is an in-process Store used by tests and single-instance development
// setups. Transactions are fully serialized by one mutex and applied copy-on-commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
)

type Store struct {
	mu   sync.Mutex
	data *snapshot
}

type snapshot struct {
	sessions     map[string]model.Session
	appointments map[string]model.Appointment
	contacts     map[int64]model.TelegramContact
	masters      map[string]model.Master
	services     map[string]model.Service
}

func New() *Store {
	return &Store{data: &snapshot{
		sessions:     map[string]model.Session{},
		appointments: map[string]model.Appointment{},
		contacts:     map[int64]model.TelegramContact{},
		masters:      map[string]model.Master{},
		services:     map[string]model.Service{},
	}}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &tx{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// AddMaster, AddService and AddAppointment seed catalog and schedule data outside of the
// booking flow.
func (s *Store) AddMaster(m model.Master) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.masters[m.ID] = m
}

func (s *Store) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.services[svc.ID] = svc
}

func (s *Store) AddAppointment(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.appointments[a.ID] = a
}

// Appointments returns every stored appointment ordered by start time.
func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.data.appointments))
	for _, a := range s.data.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.sessions)
}

func (d *snapshot) clone() *snapshot {
	c := &snapshot{
		sessions:     make(map[string]model.Session, len(d.sessions)),
		appointments: make(map[string]model.Appointment, len(d.appointments)),
		contacts:     make(map[int64]model.TelegramContact, len(d.contacts)),
		masters:      d.masters,
		services:     d.services,
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	for k, v := range d.contacts {
		c.contacts[k] = v
	}
	return c
}

type tx struct {
	data *snapshot
}

func (t *tx) GetSessionForUpdate(_ context.Context, id string) (model.Session, error) {
	s, ok := t.data.sessions[id]
	if !ok {
		return model.Session{}, errs.NotFound("session")
	}
	return s, nil
}

func (t *tx) InsertSession(_ context.Context, s model.Session) error {
	if _, exists := t.data.sessions[s.ID]; exists {
		return errs.InvalidInput("session %s already exists", s.ID)
	}
	t.data.sessions[s.ID] = s
	return nil
}

func (t *tx) UpdateSession(_ context.Context, s model.Session) error {
	if _, ok := t.data.sessions[s.ID]; !ok {
		return errs.NotFound("session")
	}
	t.data.sessions[s.ID] = s
	return nil
}

func (t *tx) DeleteSession(_ context.Context, id string) error {
	delete(t.data.sessions, id)
	return nil
}

func (t *tx) FindCreatedTelegramSession(_ context.Context, chatID int64, now time.Time) (model.Session, error) {
	var best model.Session
	found := false
	for _, s := range t.data.sessions {
		if s.Channel != model.ChannelTelegram || s.TelegramChatID == nil || *s.TelegramChatID != chatID {
			continue
		}
		if s.State(now) != model.StateCreated {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best, found = s, true
		}
	}
	if !found {
		return model.Session{}, errs.NotFound("pending telegram session")
	}
	return best, nil
}

func (t *tx) DeleteExpiredSessions(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range t.data.sessions {
		if s.LinkedAppointmentID == nil && s.ExpiresAt.Before(cutoff) {
			delete(t.data.sessions, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) GetMaster(_ context.Context, id string) (model.Master, error) {
	m, ok := t.data.masters[id]
	if !ok {
		return model.Master{}, errs.NotFound("master")
	}
	return m, nil
}

func (t *tx) GetService(_ context.Context, id string) (model.Service, error) {
	svc, ok := t.data.services[id]
	if !ok {
		return model.Service{}, errs.NotFound("service")
	}
	return svc, nil
}

// LockMaster is a no-op: the store mutex already serializes every transaction.
func (t *tx) LockMaster(context.Context, string) error { return nil }

func (t *tx) ListBlockingAppointments(_ context.Context, masterID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.data.appointments {
		if a.MasterID != masterID || !a.Status.Blocking() {
			continue
		}
		if a.StartAt.Before(to) && from.Before(a.EndAt) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (t *tx) InsertAppointment(_ context.Context, a model.Appointment) error {
	for _, existing := range t.data.appointments {
		if a.SessionID != "" && existing.SessionID == a.SessionID {
			return errs.SessionConsumed()
		}
		if a.Status.Blocking() && existing.Status.Blocking() && existing.MasterID == a.MasterID &&
			existing.StartAt.Before(a.EndAt) && a.StartAt.Before(existing.EndAt) {
			return errs.SlotUnavailable()
		}
	}
	t.data.appointments[a.ID] = a
	return nil
}

func (t *tx) GetTelegramContact(_ context.Context, chatID int64) (model.TelegramContact, error) {
	c, ok := t.data.contacts[chatID]
	if !ok {
		return model.TelegramContact{}, errs.NotFound("telegram contact")
	}
	return c, nil
}

func (t *tx) UpsertTelegramContact(_ context.Context, c model.TelegramContact) error {
	t.data.contacts[c.ChatID] = c
	return nil
}

func (t *tx) ListTelegramContactsBySuffix(_ context.Context, tail string) ([]model.TelegramContact, error) {
	var out []model.TelegramContact
	for _, c := range t.data.contacts {
		if strings.HasSuffix(c.Phone, tail) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}
