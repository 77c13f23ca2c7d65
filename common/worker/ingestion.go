// Package worker commits queued ingest jobs: it writes the metadata blob and
// the upload record, in that order, and only then lets the queue acknowledge.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/fieldsense/audioingest/common/blobstore"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/fieldsense/audioingest/common/queue"
	"github.com/fieldsense/audioingest/common/recordstore"
)

// IngestionWorker processes ingest jobs
type IngestionWorker struct {
	blobs   blobstore.Store
	records recordstore.Store
	logger  *logger.Logger
}

// NewIngestionWorker creates a worker over the given stores
func NewIngestionWorker(blobs blobstore.Store, records recordstore.Store, log *logger.Logger) *IngestionWorker {
	return &IngestionWorker{
		blobs:   blobs,
		records: records,
		logger:  log,
	}
}

// Process runs one job and returns the committed record. Errors carry an
// errs.Kind: data_loss when the binary is gone, storage when a write failed.
func (w *IngestionWorker) Process(ctx context.Context, job *models.IngestJob) (*models.UploadRecord, error) {
	const op = "process job"
	log := w.logger.WithJobID(job.ID).WithDeviceID(job.DeviceID)

	ok, err := w.blobs.Exists(ctx, job.BinaryFilename)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.E(errs.KindDataLoss, op, fmt.Sprintf("binary %q not found", job.BinaryFilename), nil)
	}

	if err := w.writeMetadata(ctx, job); err != nil {
		return nil, err
	}

	rec, inserted, err := w.records.Insert(ctx, job.Record())
	if err != nil {
		return nil, err
	}

	if inserted {
		log.Info("upload committed",
			"record_id", rec.ID,
			"filename", rec.Filename,
			"metadata_file", rec.MetadataFileName(),
		)
	} else {
		log.Info("upload already committed", "record_id", rec.ID)
	}
	return rec, nil
}

// writeMetadata stores the job's document. Identical existing content is
// left in place so redeliveries do not rewrite the blob.
func (w *IngestionWorker) writeMetadata(ctx context.Context, job *models.IngestJob) error {
	doc := []byte(job.Document)
	if len(doc) == 0 {
		encoded, err := json.Marshal(job.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		doc = encoded
	}

	existing, err := blobstore.ReadAll(ctx, w.blobs, job.MetadataFilename)
	switch {
	case err == nil:
		if jsonpatch.Equal(existing, doc) {
			w.logger.Debug("metadata blob unchanged", "job_id", job.ID, "metadata_file", job.MetadataFilename)
			return nil
		}
	case !errors.Is(err, errs.NotFound):
		return err
	}

	return blobstore.PutBytes(ctx, w.blobs, job.MetadataFilename, doc)
}

// Handle is the queue.Handler for ingest jobs. Permanent failures are logged
// and acknowledged; storage failures are returned for redelivery.
func (w *IngestionWorker) Handle(ctx context.Context, job *models.IngestJob) error {
	_, err := w.Process(ctx, job)
	if err == nil {
		return nil
	}

	log := w.logger.WithJobID(job.ID).WithDeviceID(job.DeviceID)

	switch errs.KindOf(err) {
	case errs.KindDataLoss:
		log.Error("binary missing for queued metadata, dropping job",
			"binary_filename", job.BinaryFilename,
			"error", err,
		)
		return nil
	case errs.KindValidation:
		log.Error("invalid job, dropping", "error", err)
		return nil
	default:
		log.Error("ingestion failed, job will be redelivered", "error", err)
		return err
	}
}

// Run consumes q with the given number of goroutines until ctx is done
func (w *IngestionWorker) Run(ctx context.Context, q queue.Queue, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	w.logger.Info("ingestion worker starting", "concurrency", concurrency)

	var wg sync.WaitGroup
	errChan := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Consume(ctx, w.Handle); err != nil {
				errChan <- err
			}
		}()
	}

	wg.Wait()
	close(errChan)

	w.logger.Info("ingestion worker stopped")
	return <-errChan
}
