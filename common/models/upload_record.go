package models

import "time"

// UploadRecord is one committed ingestion: a binary recording plus its
// processed metadata document.
// Maps to: upload_record table
type UploadRecord struct {
	// Monotonic identity assigned by the record store
	ID int64 `db:"id" json:"id"`

	DeviceID string `db:"device_id" json:"device_id"`

	// Blob store names
	Filename     string  `db:"filename" json:"filename"`
	MetadataFile *string `db:"metadata_file" json:"metadata_file"`

	// Device-supplied session bounds (epoch values)
	StartTime *int64 `db:"start_time" json:"start_time"`
	EndTime   *int64 `db:"end_time" json:"end_time"`

	Latitude  *float64 `db:"latitude" json:"latitude"`
	Longitude *float64 `db:"longitude" json:"longitude"`

	// Server-assigned at commit time
	IngestedAt time.Time `db:"ingested_at" json:"ingested_at"`

	// Collapses duplicate commits of the same job on redelivery
	IdempotencyKey string `db:"idempotency_key" json:"-"`
}

// MetadataFileName returns the metadata blob name or "" when unset.
func (r *UploadRecord) MetadataFileName() string {
	if r.MetadataFile == nil {
		return ""
	}
	return *r.MetadataFile
}
