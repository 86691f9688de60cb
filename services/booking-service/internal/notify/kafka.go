package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/salonbook/salonbook/libs/events"
	"github.com/salonbook/salonbook/libs/kafkax"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes an AppointmentCreated event for notification-service.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaNotifier(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Notify(ctx context.Context, appt model.Appointment) error {
	payload, err := json.Marshal(Event(appt))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafkax.NewMessage(ctx, events.TopicAppointmentCreated, appt.ID, payload)
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", events.TopicAppointmentCreated, err)
	}
	return nil
}

func Event(appt model.Appointment) events.AppointmentCreated {
	evt := events.AppointmentCreated{
		AppointmentID: appt.ID,
		SessionID:     appt.SessionID,
		MasterID:      appt.MasterID,
		ServiceID:     appt.ServiceID,
		CustomerName:  appt.CustomerName,
		Phone:         appt.Phone,
		StartAt:       appt.StartAt.UTC(),
		EndAt:         appt.EndAt.UTC(),
		CreatedAt:     appt.CreatedAt.UTC(),
	}
	if appt.Email != nil {
		evt.Email = *appt.Email
	}
	if appt.BirthDate != nil {
		evt.BirthDate = appt.BirthDate.Format("2006-01-02")
	}
	return evt
}
