package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldsense/audioingest/common/db"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/jackc/pgx/v5"
)

const recordColumns = `id, device_id, filename, metadata_file, start_time, end_time, latitude, longitude, ingested_at, idempotency_key`

// insertLockKey serialises inserts so that ids and ingested_at are assigned
// in the same order.
const insertLockKey = 0x75706c6f6164 // "upload"

// Postgres is the pgx-backed Store.
type Postgres struct {
	db *db.DB
}

// NewPostgres creates a record store over an open pool
func NewPostgres(database *db.DB) *Postgres {
	return &Postgres{db: database}
}

// Insert commits a record; a conflicting idempotency key returns the existing row.
// ingested_at is taken from the database clock and never falls behind the
// newest committed row, so it is non-decreasing in id across workers.
func (p *Postgres) Insert(ctx context.Context, rec *models.UploadRecord) (*models.UploadRecord, bool, error) {
	if err := validateRecord(rec); err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO upload_record (device_id, filename, metadata_file, start_time, end_time, latitude, longitude, ingested_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			GREATEST(clock_timestamp(), (SELECT max(ingested_at) FROM upload_record)),
			$8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, ingested_at
	`

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, false, errs.WrapStorage("insert record", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(insertLockKey)); err != nil {
		return nil, false, errs.WrapStorage("insert record", err)
	}

	committed := *rec
	err = tx.QueryRow(ctx, query,
		committed.DeviceID,
		committed.Filename,
		committed.MetadataFile,
		committed.StartTime,
		committed.EndTime,
		committed.Latitude,
		committed.Longitude,
		committed.IdempotencyKey,
	).Scan(&committed.ID, &committed.IngestedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, errs.WrapStorage("insert record", err)
		}
		existing, err := p.byIdempotencyKey(ctx, rec.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errs.WrapStorage("insert record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, errs.WrapStorage("insert record", err)
	}

	committed.IngestedAt = committed.IngestedAt.UTC()
	return &committed, true, nil
}

func (p *Postgres) byIdempotencyKey(ctx context.Context, key string) (*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record WHERE idempotency_key = $1`

	rec, err := scanRecord(p.db.QueryRow(ctx, query, key))
	if err != nil {
		return nil, errs.WrapStorage("get record by idempotency key", err)
	}
	return rec, nil
}

// ListNewestFirst returns all records, highest id first
func (p *Postgres) ListNewestFirst(ctx context.Context) ([]*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record ORDER BY id DESC`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, errs.WrapStorage("list records", err)
	}
	defer rows.Close()

	var records []*models.UploadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errs.WrapStorage("scan record", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.WrapStorage("list records", err)
	}

	return records, nil
}

// LatestForDevice returns the device's highest-id record
func (p *Postgres) LatestForDevice(ctx context.Context, deviceID string) (*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record WHERE device_id = $1 ORDER BY id DESC LIMIT 1`

	rec, err := scanRecord(p.db.QueryRow(ctx, query, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("latest record", "no uploads for device %q", deviceID)
	}
	if err != nil {
		return nil, errs.WrapStorage("latest record", err)
	}
	return rec, nil
}

// Version returns (max id, count) of the record set
func (p *Postgres) Version(ctx context.Context) (Version, error) {
	var v Version
	err := p.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0), COUNT(*) FROM upload_record`).Scan(&v.MaxID, &v.Count)
	if err != nil {
		return Version{}, errs.WrapStorage("record version", err)
	}
	return v, nil
}

// Health pings the pool
func (p *Postgres) Health(ctx context.Context) error {
	return p.db.Health(ctx)
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.UploadRecord, error) {
	rec := &models.UploadRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.Filename,
		&rec.MetadataFile,
		&rec.StartTime,
		&rec.EndTime,
		&rec.Latitude,
		&rec.Longitude,
		&rec.IngestedAt,
		&rec.IdempotencyKey,
	)
	if err != nil {
		return nil, fmt.Errorf("scan upload_record: %w", err)
	}
	rec.IngestedAt = rec.IngestedAt.UTC()
	return rec, nil
}
