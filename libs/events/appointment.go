// Package events holds the payloads exchanged between services over Kafka.
package events

import "time"

const TopicAppointmentCreated = "booking.appointment.created.v1"

type AppointmentCreated struct {
	AppointmentID string    `json:"appointment_id"`
	SessionID     string    `json:"session_id"`
	MasterID      string    `json:"master_id"`
	ServiceID     string    `json:"service_id"`
	CustomerName  string    `json:"customer_name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email,omitempty"`
	BirthDate     string    `json:"birth_date,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	CreatedAt     time.Time `json:"created_at"`
}
