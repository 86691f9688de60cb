package storage

import (
	"context"
	"embed"
	"io/fs"

	"github.com/salonbook/salonbook/libs/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the booking schema up to date.
func Migrate(ctx context.Context, pool *db.Pool) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return db.Migrate(ctx, pool, "booking", sub)
}
