// Package store defines the transactional persistence surface of the booking engine.
// Every read-modify-write on a session or on a master's schedule happens inside one
// InTx call; implementations serialize conflicting transactions.
package store

import (
	"context"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a transaction. Lookups of missing rows
// return an errs.NotFound error.
type Tx interface {
	// GetSessionForUpdate loads a session and holds it until the transaction ends.
	GetSessionForUpdate(ctx context.Context, id string) (model.Session, error)
	InsertSession(ctx context.Context, s model.Session) error
	UpdateSession(ctx context.Context, s model.Session) error
	DeleteSession(ctx context.Context, id string) error
	// FindCreatedTelegramSession returns the newest unexpired, undispatched Telegram
	// session attached to chatID.
	FindCreatedTelegramSession(ctx context.Context, chatID int64, now time.Time) (model.Session, error)
	// DeleteExpiredSessions removes unconsumed sessions that expired before cutoff.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)

	GetMaster(ctx context.Context, id string) (model.Master, error)
	GetService(ctx context.Context, id string) (model.Service, error)

	// LockMaster serializes schedule writes for one master until the transaction ends.
	LockMaster(ctx context.Context, masterID string) error
	// ListBlockingAppointments returns PENDING/CONFIRMED appointments of the master that
	// intersect [from, to).
	ListBlockingAppointments(ctx context.Context, masterID string, from, to time.Time) ([]model.Appointment, error)
	// InsertAppointment fails with errs.SlotUnavailable when the range collides with a
	// blocking appointment and with errs.SessionConsumed when the session already has one.
	InsertAppointment(ctx context.Context, a model.Appointment) error

	GetTelegramContact(ctx context.Context, chatID int64) (model.TelegramContact, error)
	UpsertTelegramContact(ctx context.Context, c model.TelegramContact) error
	// ListTelegramContactsBySuffix returns contacts whose phone ends with tail.
	ListTelegramContactsBySuffix(ctx context.Context, tail string) ([]model.TelegramContact, error)
}
