// Package storage records every alert the service tried to deliver.
package storage

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"

	"github.com/salonbook/salonbook/libs/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

func Migrate(ctx context.Context, pool *db.Pool) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return db.Migrate(ctx, pool, "notification", sub)
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

type Notification struct {
	AppointmentID string
	Channel       string
	Recipient     string
	Provider      string
	Payload       any
	Status        Status
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, channel, recipient, provider, payload, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, n.AppointmentID, n.Channel, n.Recipient, n.Provider, payload, string(n.Status), n.Error)
	return err
}
