// Package recordstore persists committed uploads. The table is append-only:
// rows are inserted once and never updated or deleted.
package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/db"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
)

// Store is the durable table of UploadRecords.
type Store interface {
	// Insert commits rec in a single statement and returns the committed row.
	// When a row with the same idempotency key already exists, that row is
	// returned with inserted=false.
	Insert(ctx context.Context, rec *models.UploadRecord) (committed *models.UploadRecord, inserted bool, err error)

	// ListNewestFirst returns every record ordered by id descending.
	ListNewestFirst(ctx context.Context) ([]*models.UploadRecord, error)

	// LatestForDevice returns the highest-id record for the device, or a
	// not-found error when the device has none.
	LatestForDevice(ctx context.Context, deviceID string) (*models.UploadRecord, error)

	// Version identifies the current record set.
	Version(ctx context.Context) (Version, error)

	Health(ctx context.Context) error
	Close() error
}

// Version changes on every commit because the table is append-only.
type Version struct {
	MaxID int64
	Count int64
}

// String renders the version as a cache key.
func (v Version) String() string {
	return fmt.Sprintf("%d:%d", v.MaxID, v.Count)
}

// Open connects the store selected by cfg.Database.Driver and applies
// pending migrations.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		database, err := db.New(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return NewPostgres(database), nil
	case "sqlite":
		sqlDB, err := db.OpenSQLite(ctx, cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return NewSQLite(sqlDB), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}

func validateRecord(rec *models.UploadRecord) error {
	if err := models.ValidateDeviceID(rec.DeviceID); err != nil {
		return err
	}
	if rec.Filename == "" {
		return errs.Validationf("insert record", "filename is required")
	}
	if rec.IdempotencyKey == "" {
		return errs.Validationf("insert record", "idempotency key is required")
	}
	return nil
}

// stamp reads the candidate commit time. The store raises it to the newest
// committed ingested_at when the clock is behind.
func stamp(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Microsecond)
}
