// Package booking turns a verified session into an appointment.
package booking

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("booking-service/booking")

// ProfileUpdate carries contact details collected after verification. Nil fields leave
// the appointment's defaults untouched.
type ProfileUpdate struct {
	Email     *string
	BirthDate *time.Time
}

// Notifier is told about every appointment after its transaction commits. It must not
// block.
type Notifier interface {
	Dispatch(ctx context.Context, appt model.Appointment)
}

type Materializer struct {
	store    store.Store
	sessions *verification.Sessions
	checker  *availability.Checker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewMaterializer(st store.Store, sessions *verification.Sessions, checker *availability.Checker, notifier Notifier, logger *slog.Logger, now func() time.Time) *Materializer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: st, sessions: sessions, checker: checker, notifier: notifier, logger: logger, now: now}
}

// Materialize creates the appointment for a VERIFIED session and consumes the session in
// one transaction. Schedule writes for the master are serialized by LockMaster, so the
// availability re-check and the insert cannot interleave with a competing materialization.
// A taken slot fails with SlotUnavailable and leaves the session VERIFIED.
func (m *Materializer) Materialize(ctx context.Context, sessionID string, update ProfileUpdate) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Materialize", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	email, err := normalizeEmail(update.Email)
	if err != nil {
		return model.Appointment{}, err
	}

	var appt model.Appointment
	err = m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := m.sessions.Get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireVerified(sess.State(m.now())); err != nil {
			return err
		}

		if err := tx.LockMaster(ctx, sess.Slot.MasterID); err != nil {
			return err
		}
		ok, err := m.checker.IsBookable(ctx, tx, availability.Query{
			MasterID:  sess.Slot.MasterID,
			ServiceID: sess.Slot.ServiceID,
			StartAt:   sess.Slot.StartAt,
			EndAt:     sess.Slot.EndAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errs.SlotUnavailable()
		}

		appt = newAppointment(sess, email, update.BirthDate, m.now())
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		_, err = m.sessions.Consume(ctx, tx, sess.ID, appt.ID)
		return err
	})
	if err != nil {
		if errs.KindOf(err) == "" {
			span.RecordError(err)
			span.SetStatus(codes.Error, "materialize failed")
		}
		return model.Appointment{}, err
	}

	span.SetAttributes(attribute.String("appointment_id", appt.ID))
	m.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"session_id", sessionID,
		"master_id", appt.MasterID,
		"start_at", appt.StartAt,
	)
	if m.notifier != nil {
		m.notifier.Dispatch(ctx, appt)
	}
	return appt, nil
}

// requireVerified orders the checks so a consumed session reports SessionConsumed even
// after it expired.
func requireVerified(st model.State) error {
	switch st {
	case model.StateVerified:
		return nil
	case model.StateConsumed:
		return errs.SessionConsumed()
	case model.StateExpired:
		return errs.SessionExpired()
	case model.StateLocked:
		return errs.SessionLocked()
	default:
		return errs.InvalidInput("session is not verified")
	}
}

func newAppointment(sess model.Session, email *string, birthDate *time.Time, now time.Time) model.Appointment {
	if email == nil && sess.Channel == model.ChannelGoogle {
		subject := sess.SubjectKey
		email = &subject
	}
	return model.Appointment{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		ServiceID:     sess.Slot.ServiceID,
		MasterID:      sess.Slot.MasterID,
		StartAt:       sess.Slot.StartAt,
		EndAt:         sess.Slot.EndAt,
		CustomerName:  sess.CustomerName,
		Phone:         sess.ContactPhone,
		Email:         email,
		BirthDate:     birthDate,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
		CreatedAt:     now,
	}
}

func normalizeEmail(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return nil, errs.InvalidInput("invalid email address")
	}
	v = strings.ToLower(addr.Address)
	return &v, nil
}
