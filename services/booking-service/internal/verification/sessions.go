package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
)

// NewSession describes a session to open. SubjectKey is the canonical phone digits for
// SMS and TELEGRAM, or the lower-cased email for GOOGLE.
type NewSession struct {
	Channel        model.Channel
	SubjectKey     string
	Slot           model.Slot
	CustomerName   string
	ContactPhone   string
	TelegramChatID *int64
}

// Sessions owns every transition of a verification session. Each method runs inside the
// caller's transaction and loads the row with GetSessionForUpdate, so transitions on one
// session never interleave.
type Sessions struct {
	policy Policy
	now    func() time.Time
}

func NewSessions(p Policy, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{policy: p, now: now}
}

func (s *Sessions) Policy() Policy { return s.policy }

// Create persists a new session in CREATED state. Code channels get a fresh code whose
// plaintext is returned once and never stored.
func (s *Sessions) Create(ctx context.Context, tx store.Tx, in NewSession) (model.Session, string, error) {
	now := s.now()
	sess := model.Session{
		ID:                uuid.NewString(),
		Channel:           in.Channel,
		SubjectKey:        in.SubjectKey,
		Slot:              in.Slot,
		CustomerName:      in.CustomerName,
		ContactPhone:      in.ContactPhone,
		MaxAttempts:       s.policy.MaxAttempts,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.policy.TTL),
		ResendAvailableAt: now.Add(s.policy.ResendCooldown),
		TelegramChatID:    in.TelegramChatID,
	}
	var code string
	if in.Channel.UsesCode() {
		var err error
		code, sess.CodeHash, err = s.issue()
		if err != nil {
			return model.Session{}, "", err
		}
	}
	if err := tx.InsertSession(ctx, sess); err != nil {
		return model.Session{}, "", err
	}
	return sess, code, nil
}

func (s *Sessions) Get(ctx context.Context, tx store.Tx, id string) (model.Session, error) {
	return tx.GetSessionForUpdate(ctx, id)
}

// MarkDispatched records that the code or redirect reached the user.
func (s *Sessions) MarkDispatched(ctx context.Context, tx store.Tx, sess model.Session) (model.Session, error) {
	now := s.now()
	sess.DispatchedAt = &now
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// RecordFailedAttempt increments the attempt counter of a PENDING_CODE session. The
// returned session is LOCKED once the counter reaches MaxAttempts.
func (s *Sessions) RecordFailedAttempt(ctx context.Context, tx store.Tx, id string) (model.Session, error) {
	sess, err := tx.GetSessionForUpdate(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if err := requireState(sess.State(s.now()), model.StatePendingCode); err != nil {
		return model.Session{}, err
	}
	sess.AttemptCount++
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *Sessions) MarkVerified(ctx context.Context, tx store.Tx, id string) (model.Session, error) {
	sess, err := tx.GetSessionForUpdate(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	now := s.now()
	if err := requireState(sess.State(now), model.StatePendingCode); err != nil {
		return model.Session{}, err
	}
	sess.VerifiedAt = &now
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Consume links the session to the appointment created from it. A second call fails with
// SessionConsumed whatever the appointment id.
func (s *Sessions) Consume(ctx context.Context, tx store.Tx, id, appointmentID string) (model.Session, error) {
	sess, err := tx.GetSessionForUpdate(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if err := requireState(sess.State(s.now()), model.StateVerified); err != nil {
		return model.Session{}, err
	}
	sess.LinkedAppointmentID = &appointmentID
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Resend replaces the code of a PENDING_CODE session once the cooldown has elapsed. The
// attempt counter and expiry restart with the new code.
func (s *Sessions) Resend(ctx context.Context, tx store.Tx, id string) (model.Session, string, error) {
	sess, err := tx.GetSessionForUpdate(ctx, id)
	if err != nil {
		return model.Session{}, "", err
	}
	now := s.now()
	if err := requireState(sess.State(now), model.StatePendingCode); err != nil {
		return model.Session{}, "", err
	}
	if !sess.Channel.UsesCode() {
		return model.Session{}, "", errs.InvalidInput("%s sessions have no code to resend", sess.Channel)
	}
	if now.Before(sess.ResendAvailableAt) {
		return model.Session{}, "", errs.ResendCooldown(sess.ResendAvailableAt.Sub(now))
	}
	return s.Rotate(ctx, tx, sess)
}

// Rotate issues a new code for sess without state checks.
func (s *Sessions) Rotate(ctx context.Context, tx store.Tx, sess model.Session) (model.Session, string, error) {
	code, hash, err := s.issue()
	if err != nil {
		return model.Session{}, "", err
	}
	now := s.now()
	sess.CodeHash = hash
	sess.AttemptCount = 0
	sess.ExpiresAt = now.Add(s.policy.TTL)
	sess.ResendAvailableAt = now.Add(s.policy.ResendCooldown)
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return model.Session{}, "", err
	}
	return sess, code, nil
}

func (s *Sessions) Discard(ctx context.Context, tx store.Tx, id string) error {
	return tx.DeleteSession(ctx, id)
}

// SweepExpired deletes unconsumed sessions that expired more than the retention period ago.
func (s *Sessions) SweepExpired(ctx context.Context, tx store.Tx) (int64, error) {
	return tx.DeleteExpiredSessions(ctx, s.now().Add(-s.policy.Retention))
}

func (s *Sessions) issue() (string, []byte, error) {
	code, err := newCode(s.policy.CodeLength)
	if err != nil {
		return "", nil, err
	}
	hash, err := hashCode(code, s.policy.CodeHashCost)
	if err != nil {
		return "", nil, err
	}
	return code, hash, nil
}

// requireState maps a terminal or unexpected state to the error a caller reports.
func requireState(got, want model.State) error {
	switch got {
	case want:
		return nil
	case model.StateConsumed:
		return errs.SessionConsumed()
	case model.StateExpired:
		return errs.SessionExpired()
	case model.StateLocked:
		return errs.SessionLocked()
	case model.StateVerified:
		return errs.InvalidInput("session is already verified")
	case model.StateCreated:
		return errs.InvalidInput("verification has not been sent yet")
	default:
		return errs.InvalidInput("session is not verified")
	}
}
