// Package storage implements the booking store on PostgreSQL. Row locks guard sessions,
// a transaction-scoped advisory lock serializes schedule writes per master, and the
// exclusion constraint on appointments backs both.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
)

type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.pool.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

const sessionColumns = `
	id, channel, subject_key, service_id, master_id, start_at, end_at, customer_name, contact_phone,
	code_hash, attempt_count, max_attempts, created_at, expires_at, resend_available_at,
	dispatched_at, verified_at, linked_appointment_id, telegram_chat_id`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.Channel,
		&s.SubjectKey,
		&s.Slot.ServiceID,
		&s.Slot.MasterID,
		&s.Slot.StartAt,
		&s.Slot.EndAt,
		&s.CustomerName,
		&s.ContactPhone,
		&s.CodeHash,
		&s.AttemptCount,
		&s.MaxAttempts,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.ResendAvailableAt,
		&s.DispatchedAt,
		&s.VerifiedAt,
		&s.LinkedAppointmentID,
		&s.TelegramChatID,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Session{}, errs.NotFound("session")
		}
		return model.Session{}, err
	}
	return s, nil
}

func (t *pgTx) GetSessionForUpdate(ctx context.Context, id string) (model.Session, error) {
	return scanSession(t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM verification_sessions WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertSession(ctx context.Context, s model.Session) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO verification_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, s.ID, s.Channel, s.SubjectKey, s.Slot.ServiceID, s.Slot.MasterID, s.Slot.StartAt, s.Slot.EndAt,
		s.CustomerName, s.ContactPhone, s.CodeHash, s.AttemptCount, s.MaxAttempts, s.CreatedAt, s.ExpiresAt,
		s.ResendAvailableAt, s.DispatchedAt, s.VerifiedAt, s.LinkedAppointmentID, s.TelegramChatID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s model.Session) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE verification_sessions
		SET code_hash = $2,
			attempt_count = $3,
			expires_at = $4,
			resend_available_at = $5,
			dispatched_at = $6,
			verified_at = $7,
			linked_appointment_id = $8,
			telegram_chat_id = $9
		WHERE id = $1
	`, s.ID, s.CodeHash, s.AttemptCount, s.ExpiresAt, s.ResendAvailableAt, s.DispatchedAt, s.VerifiedAt,
		s.LinkedAppointmentID, s.TelegramChatID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("session")
	}
	return nil
}

func (t *pgTx) DeleteSession(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM verification_sessions WHERE id = $1`, id)
	return err
}

func (t *pgTx) FindCreatedTelegramSession(ctx context.Context, chatID int64, now time.Time) (model.Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE channel = 'TELEGRAM'
			AND telegram_chat_id = $1
			AND dispatched_at IS NULL
			AND verified_at IS NULL
			AND linked_appointment_id IS NULL
			AND attempt_count < max_attempts
			AND expires_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, chatID, now))
	if errs.KindOf(err) == errs.KindNotFound {
		return model.Session{}, errs.NotFound("pending telegram session")
	}
	return s, err
}

func (t *pgTx) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM verification_sessions
		WHERE linked_appointment_id IS NULL AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) GetMaster(ctx context.Context, id string) (model.Master, error) {
	var m model.Master
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, active, telegram_chat_id FROM masters WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Active, &m.TelegramChatID)
	if db.IsNoRows(err) {
		return model.Master{}, errs.NotFound("master")
	}
	return m, err
}

func (t *pgTx) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, duration_minutes FROM services WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes)
	if db.IsNoRows(err) {
		return model.Service{}, errs.NotFound("service")
	}
	return s, err
}

// LockMaster takes a transaction-scoped advisory lock keyed by the master id.
func (t *pgTx) LockMaster(ctx context.Context, masterID string) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "master:"+masterID); err != nil {
		return fmt.Errorf("lock master: %w", err)
	}
	return nil
}

func (t *pgTx) ListBlockingAppointments(ctx context.Context, masterID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, COALESCE(session_id, ''), service_id, master_id, start_at, end_at, customer_name, phone,
			email, birth_date, status, payment_status, created_at
		FROM appointments
		WHERE master_id = $1
			AND status IN ('PENDING', 'CONFIRMED')
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at ASC
	`, masterID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.ServiceID,
			&a.MasterID,
			&a.StartAt,
			&a.EndAt,
			&a.CustomerName,
			&a.Phone,
			&a.Email,
			&a.BirthDate,
			&a.Status,
			&a.PaymentStatus,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	var sessionID *string
	if a.SessionID != "" {
		sessionID = &a.SessionID
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, session_id, service_id, master_id, start_at, end_at, customer_name, phone, email, birth_date,
			status, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, sessionID, a.ServiceID, a.MasterID, a.StartAt, a.EndAt, a.CustomerName, a.Phone, a.Email,
		a.BirthDate, a.Status, a.PaymentStatus, a.CreatedAt)
	switch db.SQLState(err) {
	case "":
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	case db.CodeExclusionViolation:
		return errs.SlotUnavailable()
	case db.CodeUniqueViolation:
		return errs.SessionConsumed()
	default:
		return fmt.Errorf("insert appointment: %w", err)
	}
}

func (t *pgTx) GetTelegramContact(ctx context.Context, chatID int64) (model.TelegramContact, error) {
	var c model.TelegramContact
	err := t.tx.QueryRow(ctx, `
		SELECT chat_id, phone, updated_at FROM telegram_contacts WHERE chat_id = $1
	`, chatID).Scan(&c.ChatID, &c.Phone, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return model.TelegramContact{}, errs.NotFound("telegram contact")
	}
	return c, err
}

func (t *pgTx) UpsertTelegramContact(ctx context.Context, c model.TelegramContact) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO telegram_contacts (chat_id, phone, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
	`, c.ChatID, c.Phone, c.UpdatedAt)
	return err
}

func (t *pgTx) ListTelegramContactsBySuffix(ctx context.Context, tail string) ([]model.TelegramContact, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT chat_id, phone, updated_at
		FROM telegram_contacts
		WHERE right(phone, 7) = right($1, 7) AND phone LIKE '%' || $1
		ORDER BY chat_id
	`, tail)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TelegramContact, error) {
		var c model.TelegramContact
		err := row.Scan(&c.ChatID, &c.Phone, &c.UpdatedAt)
		return c, err
	})
}
