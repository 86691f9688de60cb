// Package alerts e-mails the salon operators about new appointments.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/salonbook/salonbook/libs/events"
	"github.com/salonbook/salonbook/services/notification-service/internal/email"
	"github.com/salonbook/salonbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Handler struct {
	sender     email.Sender
	store      Recorder
	recipients []string
	loc        *time.Location
	logger     *slog.Logger
}

func New(sender email.Sender, store Recorder, recipients []string, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{sender: sender, store: store, recipients: recipients, loc: loc, logger: logger}
}

// Handle sends one e-mail per operator and records each attempt. Malformed events are
// logged and skipped; only storage failures are returned.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.AppointmentCreated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.AppointmentID == "" || evt.StartAt.IsZero() || evt.EndAt.IsZero() {
		h.logger.Error("missing appointment event fields", "topic", msg.Topic)
		return nil
	}

	subject, body := Render(evt, h.loc)
	for _, to := range h.recipients {
		n := storage.Notification{
			AppointmentID: evt.AppointmentID,
			Channel:       "email",
			Recipient:     to,
			Provider:      h.sender.ProviderID(),
			Payload:       evt,
			Status:        storage.StatusSent,
		}
		if err := h.sender.Send(ctx, to, subject, body); err != nil {
			n.Status = storage.StatusFailed
			n.Error = err.Error()
			h.logger.Error("operator alert failed", "err", err, "recipient", to, "appointment_id", evt.AppointmentID)
		}
		if err := h.store.Insert(ctx, n); err != nil {
			return fmt.Errorf("record notification: %w", err)
		}
	}
	h.logger.Info("appointment alert processed", "appointment_id", evt.AppointmentID, "recipients", len(h.recipients))
	return nil
}

func Render(evt events.AppointmentCreated, loc *time.Location) (subject, body string) {
	start := evt.StartAt.In(loc)
	end := evt.EndAt.In(loc)
	subject = fmt.Sprintf("New booking: %s, %s", evt.CustomerName, start.Format("02.01 15:04"))

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", start.Format("Mon 02.01.2006"))
	fmt.Fprintf(&b, "Time: %s - %s\n", start.Format("15:04"), end.Format("15:04"))
	fmt.Fprintf(&b, "Master: %s\n", evt.MasterID)
	fmt.Fprintf(&b, "Service: %s\n", evt.ServiceID)
	fmt.Fprintf(&b, "Client: %s\n", evt.CustomerName)
	if evt.Phone != "" {
		fmt.Fprintf(&b, "Phone: +%s\n", evt.Phone)
	}
	if evt.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", evt.Email)
	}
	if evt.BirthDate != "" {
		fmt.Fprintf(&b, "Birth date: %s\n", evt.BirthDate)
	}
	fmt.Fprintf(&b, "Appointment: %s\n", evt.AppointmentID)
	return subject, b.String()
}
