package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IngestJob is one metadata submission awaiting processing. It lives only in
// the task queue and is discarded after commit or terminal failure.
type IngestJob struct {
	// Stable across redeliveries of the same submission
	ID string `json:"id"`

	DeviceID string `json:"device_id"`

	// Must already exist in the blob store
	BinaryFilename string `json:"binary_filename"`

	// Created by the worker
	MetadataFilename string `json:"metadata_filename"`

	Metadata MetadataDocument `json:"metadata"`

	// Document as submitted, with device_id merged in; written verbatim
	Document json.RawMessage `json:"document"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IdempotencyKey identifies the commit this job produces. Redelivering the
// same job yields the same key.
func (j *IngestJob) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(j.BinaryFilename))
	h.Write([]byte{0})
	h.Write([]byte(j.MetadataFilename))
	return hex.EncodeToString(h.Sum(nil))
}

// Record builds the row this job commits. ID and IngestedAt are assigned by
// the record store.
func (j *IngestJob) Record() *UploadRecord {
	metadataFile := j.MetadataFilename
	return &UploadRecord{
		DeviceID:       j.DeviceID,
		Filename:       j.BinaryFilename,
		MetadataFile:   &metadataFile,
		StartTime:      j.Metadata.StartTimestamp,
		EndTime:        j.Metadata.EndTimestamp,
		Latitude:       j.Metadata.Latitude,
		Longitude:      j.Metadata.Longitude,
		IdempotencyKey: j.IdempotencyKey(),
	}
}

// Encode serializes the job for a queue transport.
func (j *IngestJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeIngestJob parses a job produced by Encode.
func DecodeIngestJob(data []byte) (*IngestJob, error) {
	var job IngestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
