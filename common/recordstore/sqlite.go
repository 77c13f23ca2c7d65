package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/models"
)

// SQLite is the database/sql Store for single-node deployments. ingested_at
// is stored as unix nanoseconds. The handle holds a single connection, so
// inserts are serialised and the clamp in Insert keeps ingested_at
// non-decreasing in id.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a record store over a migrated SQLite handle.
func NewSQLite(sqlDB *sql.DB) *SQLite {
	return &SQLite{db: sqlDB, now: time.Now}
}

func (s *SQLite) Insert(ctx context.Context, rec *models.UploadRecord) (*models.UploadRecord, bool, error) {
	if err := validateRecord(rec); err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO upload_record (device_id, filename, metadata_file, start_time, end_time, latitude, longitude, ingested_at, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			MAX(?, COALESCE((SELECT MAX(ingested_at) FROM upload_record), 0)),
			?)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, ingested_at
	`

	committed := *rec
	var ingestedAt int64

	err := s.db.QueryRowContext(ctx, query,
		committed.DeviceID,
		committed.Filename,
		committed.MetadataFile,
		committed.StartTime,
		committed.EndTime,
		committed.Latitude,
		committed.Longitude,
		stamp(s.now).UnixNano(),
		committed.IdempotencyKey,
	).Scan(&committed.ID, &ingestedAt)

	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.byIdempotencyKey(ctx, rec.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errs.WrapStorage("insert record", err)
	}

	committed.IngestedAt = time.Unix(0, ingestedAt).UTC()
	return &committed, true, nil
}

func (s *SQLite) byIdempotencyKey(ctx context.Context, key string) (*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record WHERE idempotency_key = ?`

	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, errs.WrapStorage("get record by idempotency key", err)
	}
	return rec, nil
}

func (s *SQLite) ListNewestFirst(ctx context.Context) ([]*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.WrapStorage("list records", err)
	}
	defer rows.Close()

	var records []*models.UploadRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
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

func (s *SQLite) LatestForDevice(ctx context.Context, deviceID string) (*models.UploadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM upload_record WHERE device_id = ? ORDER BY id DESC LIMIT 1`

	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("latest record", "no uploads for device %q", deviceID)
	}
	if err != nil {
		return nil, errs.WrapStorage("latest record", err)
	}
	return rec, nil
}

func (s *SQLite) Version(ctx context.Context) (Version, error) {
	var v Version
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0), COUNT(*) FROM upload_record`).Scan(&v.MaxID, &v.Count)
	if err != nil {
		return Version{}, errs.WrapStorage("record version", err)
	}
	return v, nil
}

func (s *SQLite) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanSQLiteRecord(row rowScanner) (*models.UploadRecord, error) {
	rec := &models.UploadRecord{}
	var ingestedAt int64
	err := row.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.Filename,
		&rec.MetadataFile,
		&rec.StartTime,
		&rec.EndTime,
		&rec.Latitude,
		&rec.Longitude,
		&ingestedAt,
		&rec.IdempotencyKey,
	)
	if err != nil {
		return nil, fmt.Errorf("scan upload_record: %w", err)
	}
	rec.IngestedAt = time.Unix(0, ingestedAt).UTC()
	return rec, nil
}
