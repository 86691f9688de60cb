package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusDone      AppointmentStatus = "DONE"
	StatusCanceled  AppointmentStatus = "CANCELED"
)

// Blocking reports whether an appointment in this status occupies its master's time.
// PENDING blocks too, so two customers racing for one slot cannot both win before
// confirmation.
func (s AppointmentStatus) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// BlockingStatuses lists every status for which Blocking is true.
var BlockingStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type Appointment struct {
	ID            string
	SessionID     string
	ServiceID     string
	MasterID      string
	StartAt       time.Time
	EndAt         time.Time
	CustomerName  string
	Phone         string
	Email         *string
	BirthDate     *time.Time
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}
